// Package memory is a colony's bounded associative memory: facts grouped by
// category, each carrying a relevance score that decays with age and is
// boosted by category salience and use.
package memory

import (
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nstehr/vimy/vimy-colony/model"
)

// Payload is the free-form body of a memory.
type Payload map[string]any

// Entry is one remembered fact.
type Entry struct {
	ID           string          `json:"id"`
	Category     Category        `json:"category"`
	Payload      Payload         `json:"payload"`
	Position     *model.Position `json:"position,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Importance   float64         `json:"importance,omitempty"`
	Relevance    float64         `json:"relevance"`
	AccessCount  int             `json:"accessCount"`
	CreatedAt    time.Time       `json:"createdAt"`
	LastAccessed time.Time       `json:"lastAccessed"`

	// Score is the ranking score of the read that returned this copy.
	Score float64 `json:"-"`
}

func (e Entry) clone() Entry {
	out := e
	out.Payload = maps.Clone(e.Payload)
	out.Tags = slices.Clone(e.Tags)
	if e.Position != nil {
		p := *e.Position
		out.Position = &p
	}
	return out
}

// EntryOption decorates an entry at Store time.
type EntryOption func(*Entry)

// At pins the entry to a map position so spatial filters can find it.
func At(p model.Position) EntryOption {
	return func(e *Entry) { e.Position = &p }
}

// Tagged attaches search tags.
func Tagged(tags ...string) EntryOption {
	return func(e *Entry) { e.Tags = append(e.Tags, tags...) }
}

// Importance blends a caller-supplied importance in [0,1] with the
// category salience.
func Importance(v float64) EntryOption {
	return func(e *Entry) { e.Importance = model.Clamp01(v) }
}

// Filter narrows a Get.
type Filter struct {
	Limit        int
	Since        time.Time
	Near         *model.Position
	Radius       float64
	MinRelevance float64
}

// Query is a cross-category search.
type Query struct {
	Text         string
	Categories   []Category
	Tags         []string
	MinRelevance float64
	Limit        int
}

// CategoryStats summarises one category.
type CategoryStats struct {
	Count        int     `json:"count"`
	Capacity     int     `json:"capacity"`
	AvgRelevance float64 `json:"avgRelevance"`
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for eviction and cleanup messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store holds one colony's memories.
type Store struct {
	mu      sync.Mutex
	cfg     Config
	entries map[Category][]*Entry
	now     func() time.Time
	logger  *slog.Logger
}

// New builds a store. The config is validated up front so later calls never
// meet a missing category.
func New(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		cfg:     cfg,
		entries: make(map[Category][]*Entry, len(Categories)),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Store remembers payload under cat, evicting the least relevant, least
// used entries once the category is over capacity.
func (s *Store) Store(cat Category, payload Payload, opts ...EntryOption) (Entry, error) {
	cc, ok := s.cfg.Categories[cat]
	if !ok {
		return Entry{}, fmt.Errorf("store %q: %w", cat, ErrUnknownCategory)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := &Entry{
		ID:           uuid.New().String(),
		Category:     cat,
		Payload:      maps.Clone(payload),
		CreatedAt:    now,
		LastAccessed: now,
	}
	for _, o := range opts {
		o(e)
	}
	e.Relevance = s.relevance(e, cc, now)

	list := append(s.entries[cat], e)
	for len(list) > cc.Capacity {
		idx := s.evictionIndex(list, cc, now)
		s.logger.Debug("memory evicted", "category", cat, "id", list[idx].ID, "relevance", list[idx].Relevance)
		list = slices.Delete(list, idx, idx+1)
	}
	s.entries[cat] = list
	return e.clone(), nil
}

// evictionIndex picks the entry with the lowest relevance, breaking ties by
// fewest accesses and then age.
func (s *Store) evictionIndex(list []*Entry, cc CategoryConfig, now time.Time) int {
	worst := 0
	for i, e := range list {
		e.Relevance = s.relevance(e, cc, now)
		if i == 0 {
			continue
		}
		w := list[worst]
		switch {
		case e.Relevance < w.Relevance:
			worst = i
		case e.Relevance == w.Relevance && e.AccessCount < w.AccessCount:
			worst = i
		case e.Relevance == w.Relevance && e.AccessCount == w.AccessCount && e.CreatedAt.Before(w.CreatedAt):
			worst = i
		}
	}
	return worst
}

// Get returns entries of cat matching f, ranked by 0.7·relevance + 0.3·recency.
// Every returned entry counts as accessed.
func (s *Store) Get(cat Category, f Filter) ([]Entry, error) {
	cc, ok := s.cfg.Categories[cat]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", cat, ErrUnknownCategory)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var matched []*Entry
	for _, e := range s.entries[cat] {
		e.Relevance = s.relevance(e, cc, now)
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		if e.Relevance < f.MinRelevance {
			continue
		}
		if f.Near != nil {
			if e.Position == nil || e.Position.Distance(*f.Near) > f.Radius {
				continue
			}
		}
		matched = append(matched, e)
	}

	ranked := s.rank(matched, now)
	if f.Limit > 0 && len(ranked) > f.Limit {
		ranked = ranked[:f.Limit]
	}
	for i := range ranked {
		stored := s.find(cat, ranked[i].ID)
		stored.AccessCount++
		stored.LastAccessed = now
		ranked[i].AccessCount = stored.AccessCount
		ranked[i].LastAccessed = now
	}
	return ranked, nil
}

// Count returns how many entries cat holds.
func (s *Store) Count(cat Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[cat])
}

// CountSince returns how many entries of cat were created at or after t.
// It does not count as access.
func (s *Store) CountSince(cat Category, t time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries[cat] {
		if !e.CreatedAt.Before(t) {
			n++
		}
	}
	return n
}

// Cleanup drops entries older than their category's retention unless they
// are still above the relevance floor or were accessed within the window.
// It returns the number removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for _, cat := range Categories {
		cc := s.cfg.Categories[cat]
		list := s.entries[cat]
		kept := list[:0]
		for _, e := range list {
			e.Relevance = s.relevance(e, cc, now)
			if now.Sub(e.CreatedAt) <= cc.Retention {
				kept = append(kept, e)
				continue
			}
			recentlyUsed := e.AccessCount > 0 && now.Sub(e.LastAccessed) <= cc.Retention
			if e.Relevance >= s.cfg.RelevanceFloor || recentlyUsed {
				kept = append(kept, e)
				continue
			}
			removed++
		}
		clear(list[len(kept):])
		s.entries[cat] = kept
	}
	if removed > 0 {
		s.logger.Debug("memory cleanup", "removed", removed)
	}
	return removed
}

// Search scans several categories for entries whose payload, keys or tags
// contain q.Text and that carry every tag in q.Tags. Search is read-only:
// it does not touch access bookkeeping.
func (s *Store) Search(q Query) []Entry {
	cats := q.Categories
	if len(cats) == 0 {
		cats = Categories
	}
	text := strings.ToLower(strings.TrimSpace(q.Text))

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var matched []*Entry
	for _, cat := range cats {
		cc, ok := s.cfg.Categories[cat]
		if !ok {
			continue
		}
		for _, e := range s.entries[cat] {
			e.Relevance = s.relevance(e, cc, now)
			if e.Relevance < q.MinRelevance {
				continue
			}
			if !hasTags(e, q.Tags) {
				continue
			}
			if text != "" && !containsText(e, text) {
				continue
			}
			matched = append(matched, e)
		}
	}
	ranked := s.rank(matched, now)
	if q.Limit > 0 && len(ranked) > q.Limit {
		ranked = ranked[:q.Limit]
	}
	return ranked
}

// Related finds entries associated with id by spatial proximity, shared
// category, closeness in time and overlapping content.
func (s *Store) Related(id string, limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var src *Entry
	for _, cat := range Categories {
		if e := s.find(cat, id); e != nil {
			src = e
			break
		}
	}
	if src == nil {
		return nil
	}

	srcTokens := tokens(src)
	type scored struct {
		e     *Entry
		score float64
	}
	var out []scored
	for _, cat := range Categories {
		for _, e := range s.entries[cat] {
			if e.ID == src.ID {
				continue
			}
			score := 0.0
			if src.Position != nil && e.Position != nil {
				score += 0.35 * math.Max(0, 1-src.Position.Distance(*e.Position)/s.cfg.RelatedRadius)
			}
			if e.Category == src.Category {
				score += 0.2
			}
			dt := math.Abs(e.CreatedAt.Sub(src.CreatedAt).Hours())
			score += 0.25 * math.Max(0, 1-dt)
			score += 0.2 * jaccard(srcTokens, tokens(e))
			if score >= 0.3 {
				out = append(out, scored{e, score})
			}
		}
	}
	slices.SortFunc(out, func(a, b scored) int {
		return cmpDesc(a.score, b.score)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	res := make([]Entry, len(out))
	for i, o := range out {
		res[i] = o.e.clone()
		res[i].Score = o.score
	}
	return res
}

// Export copies the whole store, keyed by category, for persistence.
func (s *Store) Export() map[Category][]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[Category][]Entry, len(s.entries))
	for cat, list := range s.entries {
		if len(list) == 0 {
			continue
		}
		cp := make([]Entry, len(list))
		for i, e := range list {
			cp[i] = e.clone()
		}
		out[cat] = cp
	}
	return out
}

// Import replaces the store's contents with data, dropping unknown
// categories and trimming any category that exceeds its capacity.
func (s *Store) Import(data map[Category][]Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries = make(map[Category][]*Entry, len(Categories))
	for cat, list := range data {
		cc, ok := s.cfg.Categories[cat]
		if !ok {
			s.logger.Warn("dropping memories for unknown category", "category", cat, "count", len(list))
			continue
		}
		ptrs := make([]*Entry, 0, len(list))
		for _, e := range list {
			cp := e.clone()
			cp.Category = cat
			if cp.ID == "" {
				cp.ID = uuid.New().String()
			}
			ptrs = append(ptrs, &cp)
		}
		for len(ptrs) > cc.Capacity {
			idx := s.evictionIndex(ptrs, cc, now)
			ptrs = slices.Delete(ptrs, idx, idx+1)
		}
		s.entries[cat] = ptrs
	}
}

// Stats summarises every category.
func (s *Store) Stats() map[Category]CategoryStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make(map[Category]CategoryStats, len(Categories))
	for _, cat := range Categories {
		cc := s.cfg.Categories[cat]
		list := s.entries[cat]
		st := CategoryStats{Count: len(list), Capacity: cc.Capacity}
		for _, e := range list {
			e.Relevance = s.relevance(e, cc, now)
			st.AvgRelevance += e.Relevance
		}
		if len(list) > 0 {
			st.AvgRelevance /= float64(len(list))
		}
		out[cat] = st
	}
	return out
}

func (s *Store) find(cat Category, id string) *Entry {
	for _, e := range s.entries[cat] {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// relevance = 0.6·salience' + 0.3·recency(last use) + 0.1·use, where
// salience' blends the category salience with the entry's own importance.
func (s *Store) relevance(e *Entry, cc CategoryConfig, now time.Time) float64 {
	base := cc.Salience
	if e.Importance > 0 {
		base = 0.5*cc.Salience + 0.5*e.Importance
	}
	last := e.LastAccessed
	if last.Before(e.CreatedAt) {
		last = e.CreatedAt
	}
	use := math.Min(1, float64(e.AccessCount)/10)
	return model.Clamp01(0.6*base + 0.3*s.recency(last, now) + 0.1*use)
}

// recency decays exponentially with the configured half-life.
func (s *Store) recency(t, now time.Time) float64 {
	age := now.Sub(t)
	if age < 0 {
		age = 0
	}
	return math.Exp(-math.Ln2 * age.Seconds() / s.cfg.RecencyHalfLife.Seconds())
}

// rank copies entries and orders them by the 70/30 relevance/recency blend,
// newest first on ties.
func (s *Store) rank(list []*Entry, now time.Time) []Entry {
	out := make([]Entry, len(list))
	for i, e := range list {
		out[i] = e.clone()
		out[i].Score = 0.7*e.Relevance + 0.3*s.recency(e.CreatedAt, now)
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		if c := cmpDesc(a.Score, b.Score); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func cmpDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

func hasTags(e *Entry, tags []string) bool {
	for _, want := range tags {
		if !slices.ContainsFunc(e.Tags, func(t string) bool { return strings.EqualFold(t, want) }) {
			return false
		}
	}
	return true
}

func containsText(e *Entry, text string) bool {
	for k, v := range e.Payload {
		if strings.Contains(strings.ToLower(k), text) {
			return true
		}
		if sv, ok := v.(string); ok && strings.Contains(strings.ToLower(sv), text) {
			return true
		}
	}
	for _, t := range e.Tags {
		if strings.Contains(strings.ToLower(t), text) {
			return true
		}
	}
	return false
}

// tokens is the lightweight content fingerprint used by Related.
func tokens(e *Entry) map[string]bool {
	out := make(map[string]bool)
	for k, v := range e.Payload {
		out[strings.ToLower(k)] = true
		if sv, ok := v.(string); ok {
			for _, w := range strings.Fields(strings.ToLower(sv)) {
				out[w] = true
			}
		}
	}
	for _, t := range e.Tags {
		out[strings.ToLower(t)] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Write is a deferred Store call. Colony ticks collect writes and apply
// them only when the tick commits.
type Write struct {
	Category Category
	Payload  Payload
	Options  []EntryOption
}

// Apply stores every write in order and stops at the first error.
func (s *Store) Apply(writes []Write) error {
	for _, w := range writes {
		if _, err := s.Store(w.Category, w.Payload, w.Options...); err != nil {
			return err
		}
	}
	return nil
}
