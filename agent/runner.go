package agent

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nstehr/vimy/vimy-colony/ipc"
	"github.com/nstehr/vimy/vimy-colony/model"
)

type RunnerConfig struct {
	// Workers bounds how many colonies tick at once.
	Workers int `mapstructure:"workers"`
	// TicksPerSecond paces colony ticks across the process; 0 disables
	// pacing.
	TicksPerSecond float64 `mapstructure:"ticks_per_second"`
	Burst          int     `mapstructure:"burst"`
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{Workers: 8, TicksPerSecond: 200, Burst: 50}
}

func (c RunnerConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("runner workers must be >= 1")
	}
	if c.TicksPerSecond < 0 {
		return fmt.Errorf("runner ticks_per_second must be >= 0")
	}
	if c.TicksPerSecond > 0 && c.Burst < 1 {
		return fmt.Errorf("runner burst must be >= 1 when pacing")
	}
	return nil
}

// Job is one colony tick in a batch.
type Job struct {
	Colony ipc.HelloMessage
	World  model.WorldSnapshot
}

// Runner ticks many colonies in parallel. Colonies share nothing but the
// process-wide engines, which partition their state per colony.
type Runner struct {
	host    *Host
	workers int
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewRunner(cfg RunnerConfig, host *Host, logger *slog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.TicksPerSecond > 0 {
		limit = rate.Limit(cfg.TicksPerSecond)
	}
	return &Runner{host: host, workers: cfg.Workers, limiter: rate.NewLimiter(limit, max(cfg.Burst, 1)), logger: logger}, nil
}

// TickAll registers any unseen colony and ticks every job. Results keep
// the job order. The first registration error or context cancellation
// stops the batch; ticks already committed stay committed. Save failures
// are logged and do not stop the batch.
func (r *Runner) TickAll(ctx context.Context, jobs []Job) ([]Outcome, error) {
	out := make([]Outcome, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, job := range jobs {
		g.Go(func() error {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
			if _, _, err := r.host.Register(ctx, job.Colony); err != nil {
				return fmt.Errorf("job %d: %w", i, err)
			}
			res, err := r.host.Tick(ctx, job.Colony.ColonyID, job.World)
			if err != nil {
				if res.Result.ColonyID == "" {
					return fmt.Errorf("job %d: %w", i, err)
				}
				r.logger.Warn("batch tick not saved", "colony", job.Colony.ColonyID, "error", err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	r.logger.Debug("batch ticked", "colonies", len(jobs))
	return out, nil
}
