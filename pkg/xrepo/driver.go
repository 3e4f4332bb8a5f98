package xrepo

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/blobstore"
	"github.com/cuemby/burrow/pkg/dag"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

// Driver processes batches of source commits through the in-memory syncer
// and persists the plans. Commits must be supplied in topological order:
// each commit is processed only after its parents' mappings are durable.
//
// The driver polls a caller-supplied cancellation flag between items; an
// observed cancellation returns cleanly at the next item boundary.
// Transient persistence failures are retried with backoff; a rewrite is
// deterministic and never re-run within one item.
type Driver struct {
	Pair                 RepoPair
	Registry             *Registry
	SubmoduleDeps        SubmoduleDeps
	DiscardEmptyOrdinary bool
	Context              SyncContext

	Mapping Mapping
	Blobs   *blobstore.Store

	// Graph, when set, registers rewritten target changesets in the
	// target commit graph. Covered and Reserved follow the assign-head
	// contract.
	Graph    dag.AssignStore
	Covered  *dag.IdSet
	Reserved *dag.IdSet

	// Cancel is polled between items
	Cancel *atomic.Bool

	Broker *events.Broker

	logger zerolog.Logger
}

// NewDriver wires a driver for the given repo pair
func NewDriver(pair RepoPair, registry *Registry, mapping Mapping, blobs *blobstore.Store, syncContext SyncContext) *Driver {
	return &Driver{
		Pair:     pair,
		Registry: registry,
		Mapping:  mapping,
		Blobs:    blobs,
		Context:  syncContext,
		Cancel:   &atomic.Bool{},
		logger:   log.WithRepoPair(string(pair.SourceRepoName), string(pair.TargetRepoName)),
	}
}

// Run syncs the commits in order. It returns nil on clean cancellation;
// any per-commit failure is surfaced immediately, never silently skipped.
func (d *Driver) Run(ctx context.Context, commits []*types.Changeset) error {
	session := uuid.NewString()
	d.publish(events.EventBatchStarted, session, "")
	d.logger.Info().Str("session", session).Int("commits", len(commits)).Msg("Starting sync batch")

	for _, cs := range commits {
		if d.Cancel.Load() {
			d.logger.Info().Str("session", session).Msg("Cancellation observed, stopping batch")
			d.publish(events.EventBatchCancelled, session, "")
			return nil
		}
		if err := d.syncOne(ctx, cs); err != nil {
			return err
		}
	}

	metrics.BacksyncBatchesTotal.Inc()
	d.publish(events.EventBatchCompleted, session, "")
	d.logger.Info().Str("session", session).Msg("Sync batch completed")
	return nil
}

func (d *Driver) syncOne(ctx context.Context, cs *types.Changeset) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncDuration)

	sourceCS := cs.ID()

	mappedParents, err := d.resolveParents(ctx, cs)
	if err != nil {
		return err
	}

	syncer := &InMemorySyncer{
		Pair:                 d.Pair,
		Registry:             d.Registry,
		MappedParents:        mappedParents,
		SubmoduleDeps:        d.SubmoduleDeps,
		DiscardEmptyOrdinary: d.DiscardEmptyOrdinary,
	}
	plan, err := syncer.SyncCommitInMemory(ctx, cs, d.Context, nil)
	if err != nil {
		return err
	}

	persister := &Persister{Pair: d.Pair, Mapping: d.Mapping, Blobs: d.Blobs}

	// The plan is deterministic; only persistence is retried.
	var targetCS *types.ChangesetID
	persist := func() error {
		var err error
		targetCS, err = plan.Write(ctx, persister)
		return err
	}
	notify := func(err error, next time.Duration) {
		metrics.SyncRetriesTotal.Inc()
		d.logger.Warn().Err(err).Str("changeset", sourceCS.String()).
			Dur("retry_in", next).Msg("Persistence failed, retrying")
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.RetryNotify(persist, policy, notify); err != nil {
		return fmt.Errorf("failed to persist sync of %s: %w", sourceCS, err)
	}

	if targetCS != nil && d.Graph != nil {
		if err := d.registerTarget(ctx, *targetCS); err != nil {
			return err
		}
	}

	metrics.SyncOutcomesTotal.WithLabelValues(string(plan.Kind)).Inc()
	d.publishPlan(plan, targetCS)
	return nil
}

// resolveParents looks up the durable sync outcome of every parent. A
// missing outcome is an error: ancestors must be synced first.
func (d *Driver) resolveParents(ctx context.Context, cs *types.Changeset) (map[types.ChangesetID]SyncOutcome, error) {
	out := make(map[types.ChangesetID]SyncOutcome, len(cs.Parents))
	for _, p := range cs.Parents {
		row, err := d.Mapping.Get(ctx, d.Pair.SourceRepo, p, d.Pair.TargetRepo)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, fmt.Errorf("parent commit %s of %s is not synced yet (%s -> %s)",
				p, cs.ID(), d.Pair.SourceRepoName, d.Pair.TargetRepoName)
		}
		out[p] = row.SyncOutcome()
	}
	return out, nil
}

// registerTarget assigns the freshly written target changeset into the
// target commit graph. Parents are read back through the blob store.
func (d *Driver) registerTarget(ctx context.Context, targetCS types.ChangesetID) error {
	oracle := NewBlobstoreParents(d.Blobs, d.Pair.TargetRepo)
	_, err := dag.AssignHead(ctx, d.Graph, dag.Vertex(targetCS[:]), oracle, dag.GroupMaster, d.Covered, d.Reserved)
	if err != nil {
		return fmt.Errorf("failed to register %s in the target commit graph: %w", targetCS, err)
	}
	return nil
}

func (d *Driver) publishPlan(plan *InMemoryResult, targetCS *types.ChangesetID) {
	if d.Broker == nil {
		return
	}
	eventType := events.EventCommitSynced
	switch plan.Kind {
	case ResultNoSyncCandidate:
		eventType = events.EventCommitNoSync
	case ResultWcEquivalence:
		eventType = events.EventCommitWcEquiv
	}
	metadata := map[string]string{
		"source_cs": plan.SourceCS.String(),
		"version":   string(plan.Version),
	}
	if targetCS != nil {
		metadata["target_cs"] = targetCS.String()
	}
	d.Broker.Publish(&events.Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		Metadata: metadata,
	})
}

func (d *Driver) publish(eventType events.EventType, session, message string) {
	if d.Broker == nil {
		return
	}
	d.Broker.Publish(&events.Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Message: message,
		Metadata: map[string]string{
			"session":     session,
			"source_repo": string(d.Pair.SourceRepoName),
			"target_repo": string(d.Pair.TargetRepoName),
		},
	})
}
