package events

import "time"

// Stats aggregates everything the service has seen.
type Stats struct {
	Published   int            `json:"published"`
	Processed   int            `json:"processed"`
	Failed      int            `json:"failed"`
	Retries     int            `json:"retries"`
	QueueDepth  int            `json:"queueDepth"`
	AvgAttempts float64        `json:"avgAttempts"`
	ByType      map[Type]int   `json:"byType"`
	ByLevel     map[string]int `json:"byLevel"`

	totalAttempts int
}

func newStats() Stats {
	return Stats{ByType: make(map[Type]int), ByLevel: make(map[string]int)}
}

// HistoryFilter narrows a History query. Zero fields match everything.
type HistoryFilter struct {
	Type       Type
	ColonyID   string
	Since      time.Time
	MinLevel   Level
	FailedOnly bool
	Limit      int
}

// History returns archived events matching f, newest first.
func (s *Service) History(f HistoryFilter) []Event {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	var out []Event
	for i := len(s.history) - 1; i >= 0; i-- {
		e := s.history[i]
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.ColonyID != "" && e.ColonyID != f.ColonyID {
			continue
		}
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if e.Level < f.MinLevel {
			continue
		}
		if f.FailedOnly && !e.Failed {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Stats returns a snapshot of the aggregate counters.
func (s *Service) Stats() Stats {
	depth := s.Pending()

	s.histMu.Lock()
	defer s.histMu.Unlock()

	out := s.stats
	out.ByType = make(map[Type]int, len(s.stats.ByType))
	for k, v := range s.stats.ByType {
		out.ByType[k] = v
	}
	out.ByLevel = make(map[string]int, len(s.stats.ByLevel))
	for k, v := range s.stats.ByLevel {
		out.ByLevel[k] = v
	}
	out.QueueDepth = depth
	if done := s.stats.Processed + s.stats.Failed; done > 0 {
		out.AvgAttempts = float64(s.stats.totalAttempts) / float64(done)
	}
	return out
}
