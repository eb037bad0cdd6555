package runner

import (
	"context"
	"fmt"
	"time"

	"spot_bot/internal/metrics"
	"spot_bot/internal/modules/config"
	"spot_bot/internal/modules/health/service"
	"spot_bot/internal/notify"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrEscalated: слишком много проваленных циклов подряд, процесс должен завершиться.
var ErrEscalated = errors.New("too many consecutive failed cycles")

type Cycler interface {
	RunCycle(ctx context.Context) (Report, error)
}

// Scheduler повторяет цикл с интервалом. После ошибки ждёт backoff, удваивая его до BackoffMax.
type Scheduler struct {
	cycle Cycler
	cfg   config.Schedule
	n     notify.Notifier
	state *service.State
	log   *zap.Logger
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewScheduler(cfg *config.Config, cycle Cycler, n notify.Notifier, state *service.State, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cycle: cycle,
		cfg:   cfg.Schedule,
		n:     n,
		state: state,
		log:   log,
		sleep: sleepCtx,
		now:   time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run блокируется до отмены ctx (возвращает nil) или эскалации (ErrEscalated).
func (s *Scheduler) Run(ctx context.Context) error {
	failures := 0
	backoff := s.cfg.Backoff

	for {
		if ctx.Err() != nil {
			return nil
		}

		s.log.Info("🔁 Starting cycle")
		started := s.now()
		rep, err := s.runSafe(ctx)
		metrics.CycleDuration.Observe(s.now().Sub(started).Seconds())

		if ctx.Err() != nil {
			s.log.Info("cycle interrupted by shutdown")
			return nil
		}

		var wait time.Duration
		if err != nil {
			failures++
			metrics.CyclesTotal.WithLabelValues("failed").Inc()
			metrics.ConsecutiveFailures.Set(float64(failures))
			if s.state != nil {
				s.state.CycleFailed(failures)
			}
			s.log.Error("cycle failed",
				zap.Int("consecutive_failures", failures),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)

			if s.cfg.MaxConsecutiveFailures > 0 && failures >= s.cfg.MaxConsecutiveFailures {
				s.n.Sendf("🛑 %d циклов подряд с ошибкой, останавливаюсь. Последняя: %v", failures, err)
				return errors.Wrapf(ErrEscalated, "%d failures, last: %v", failures, err)
			}

			wait = backoff
			backoff = nextBackoff(backoff, s.cfg.BackoffMax)
		} else {
			failures = 0
			backoff = s.cfg.Backoff
			metrics.CyclesTotal.WithLabelValues("ok").Inc()
			metrics.ConsecutiveFailures.Set(0)
			metrics.PositionsOpen.Set(float64(rep.Open))
			if s.state != nil {
				s.state.CycleDone(rep.Finished, rep.Open)
			}
			fields := rep.fields()
			if perr := rep.Err(); perr != nil {
				fields = append(fields, zap.NamedError("symbol_errors", perr))
			}
			s.log.Info("cycle done", fields...)
			wait = s.cfg.Interval
		}

		s.log.Info(fmt.Sprintf("⏳ Waiting %s", wait))
		if err := s.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// runSafe превращает панику цикла в ошибку, чтобы планировщик продолжал работать.
func (s *Scheduler) runSafe(ctx context.Context) (rep Report, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("cycle panic: %v", p)
		}
	}()
	return s.cycle.RunCycle(ctx)
}

func nextBackoff(cur, ceiling time.Duration) time.Duration {
	next := cur * 2
	if ceiling > 0 && next > ceiling {
		return ceiling
	}
	return next
}
