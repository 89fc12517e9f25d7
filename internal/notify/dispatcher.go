package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/infodancer/mailroute/internal/metrics"
)

// DefaultTimeout bounds a single target's Notify call.
const DefaultTimeout = 10 * time.Second

// Dispatcher fans a notification out to every target concurrently. A failing
// target never cancels or delays the others.
type Dispatcher struct {
	targets   []Target
	timeout   time.Duration
	collector metrics.Collector
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. collector and logger may be nil.
func NewDispatcher(targets []Target, timeout time.Duration, collector metrics.Collector, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{targets: targets, timeout: timeout, collector: collector, logger: logger}
}

// Len returns the number of configured targets.
func (d *Dispatcher) Len() int {
	return len(d.targets)
}

// Dispatch sends n to every target and waits for all of them. The returned
// error joins every target failure; it is informational only.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) error {
	errs := make([]error, len(d.targets))

	// A plain Group: one target's failure must not cancel the rest.
	var g errgroup.Group
	for i, t := range d.targets {
		i, t := i, t
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			err := t.Notify(tctx, n)
			d.collector.NotificationSent(t.Name(), metrics.Result(err))
			if err != nil {
				d.logger.Warn("notification failed",
					slog.String("target", t.Name()),
					slog.String("id", n.Summary.ID),
					slog.String("error", err.Error()))
				errs[i] = fmt.Errorf("%s: %w", t.Name(), err)
				return nil
			}
			d.logger.Debug("notification sent",
				slog.String("target", t.Name()),
				slog.String("id", n.Summary.ID))
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Close releases targets that hold connections.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, t := range d.targets {
		if c, ok := t.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
