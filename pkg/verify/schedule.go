package verify

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rzbill/hoist/pkg/log"
)

// cronParser accepts 5-field expressions and descriptors such as @hourly or
// @every 5m.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether expr is a usable schedule.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Schedule runs fn on the cron expression expr until ctx is done, or until
// fn has run maxRuns times when maxRuns is positive. Runs never overlap; a
// run still in progress when the next tick fires causes that tick to be
// skipped.
func Schedule(ctx context.Context, expr string, maxRuns int, logger log.Logger, fn func(context.Context)) error {
	if err := ValidateSchedule(expr); err != nil {
		return err
	}
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu   sync.Mutex
		runs int
	)
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(expr, func() {
		if ctx.Err() != nil {
			return
		}
		fn(ctx)

		mu.Lock()
		runs++
		done := maxRuns > 0 && runs >= maxRuns
		mu.Unlock()
		if done {
			cancel()
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule verification: %w", err)
	}

	logger.Info("Scheduled verification", log.Str("schedule", expr))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	mu.Lock()
	defer mu.Unlock()
	logger.Info("Scheduled verification stopped", log.Int("runs", runs))
	return nil
}
