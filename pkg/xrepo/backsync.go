package xrepo

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
)

// CommitSource yields the source commits that still need syncing, in
// topological order. An empty batch means the source is caught up.
type CommitSource interface {
	PendingCommits(ctx context.Context) ([]*types.Changeset, error)
}

// BacksyncLoop runs the driver periodically over whatever the commit
// source has pending. Cancellation mid-batch is handled by the driver's
// polled flag; stopping the loop also raises that flag so the current
// batch winds down at the next item boundary.
type BacksyncLoop struct {
	driver   *Driver
	source   CommitSource
	interval time.Duration
	logger   zerolog.Logger
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewBacksyncLoop creates a loop that polls the source on the given interval
func NewBacksyncLoop(driver *Driver, source CommitSource, interval time.Duration) *BacksyncLoop {
	return &BacksyncLoop{
		driver:   driver,
		source:   source,
		interval: interval,
		logger:   log.WithComponent("backsync-loop"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sync loop
func (l *BacksyncLoop) Start() {
	go l.run()
}

// Stop stops the loop and cancels the in-flight batch at its next item
// boundary.
func (l *BacksyncLoop) Stop() {
	close(l.stopCh)
	l.driver.Cancel.Store(true)
}

func (l *BacksyncLoop) run() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info().Msg("Backsync loop started")

	for {
		select {
		case <-ticker.C:
			if err := l.syncPending(context.Background()); err != nil {
				// Log and keep going; the next tick retries from the
				// durable mapping state.
				l.logger.Error().Err(err).Msg("Backsync cycle failed")
			}
		case <-l.stopCh:
			l.logger.Info().Msg("Backsync loop stopped")
			return
		}
	}
}

// syncPending performs one cycle: fetch pending commits and run the driver
func (l *BacksyncLoop) syncPending(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	commits, err := l.source.PendingCommits(ctx)
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		return nil
	}
	l.logger.Info().Int("commits", len(commits)).Msg("Syncing pending commits")
	return l.driver.Run(ctx, commits)
}
