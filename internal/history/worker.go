package history

import (
	"context"
	"log/slog"
	"time"
)

// Default sweep cadences.
const (
	DefaultSweepInterval        = time.Minute
	DefaultArchiveSweepInterval = time.Hour
)

// Worker drives the two background sweeps: the inactivity sweep on a
// fine interval and the archive-expiry sweep on a coarse one, plus one
// archive sweep at startup.
type Worker struct {
	store           *Store
	sweepInterval   time.Duration
	archiveInterval time.Duration
	logger          *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker builds a worker with the default cadences.
func NewWorker(store *Store, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:           store,
		sweepInterval:   DefaultSweepInterval,
		archiveInterval: DefaultArchiveSweepInterval,
		logger:          logger.With("component", "history-worker"),
	}
}

// Start launches the sweep loop. The startup archive sweep runs
// synchronously so expired messages never survive a restart.
func (w *Worker) Start(ctx context.Context) {
	if purged := w.store.SweepArchives(time.Now()); purged > 0 {
		w.logger.Info("startup archive sweep", "purged", purged)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go w.run(ctx)
	w.logger.Info("history worker started",
		"sweep_interval", w.sweepInterval, "archive_interval", w.archiveInterval)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	sweep := time.NewTicker(w.sweepInterval)
	defer sweep.Stop()
	archive := time.NewTicker(w.archiveInterval)
	defer archive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-sweep.C:
			if n := w.store.SweepInactive(now); n > 0 {
				w.logger.Info("inactivity sweep", "archived_conversations", n)
			}
		case now := <-archive.C:
			if purged := w.store.SweepArchives(now); purged > 0 {
				w.logger.Info("archive sweep", "purged", purged)
			}
		}
	}
}

// Stop halts the sweep loop and waits for it to exit.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.logger.Info("history worker stopped")
}
