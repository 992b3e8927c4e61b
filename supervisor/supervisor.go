// Package supervisor runs the long-lived loops of the process and stops all
// of them as soon as one exits. There is no restart policy: the first loop
// to finish decides the process outcome.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// ErrTaskExited is returned when a task returns without error while the
// supervisor context is still live.
var ErrTaskExited = errors.New("task exited")

// Task is a named long-lived loop. Run must return once ctx is cancelled.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Run starts every task and waits for the first one to finish. That task's
// error (or ErrTaskExited) cancels the others, and Run returns it after all
// tasks have returned. If ctx is cancelled first, tasks are expected to
// return nil and Run returns nil.
func Run(ctx context.Context, logger *slog.Logger, tasks ...Task) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, task := range tasks {
		g.Go(func() error {
			err := task.Run(gctx)
			switch {
			case err != nil:
				logger.Error("Task failed", "task", task.Name, "error", err)
				return fmt.Errorf("%s: %w", task.Name, err)
			case gctx.Err() == nil:
				logger.Warn("Task exited", "task", task.Name)
				return fmt.Errorf("%s: %w", task.Name, ErrTaskExited)
			default:
				logger.Info("Task stopped", "task", task.Name)
				return nil
			}
		})
	}

	return g.Wait()
}
