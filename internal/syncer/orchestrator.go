// Package syncer drives sync passes: it iterates pending records in the
// local store, pushes each one through the protocol client, and writes the
// outcome back. It owns the pacing and at-most-one-pass policy.
package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/example/fieldsync/internal/logging"
	"github.com/example/fieldsync/internal/models"
	"github.com/example/fieldsync/internal/remote"
)

// Storage is the slice of the durable store the orchestrator needs.
type Storage interface {
	PendingRecords(ctx context.Context) ([]*models.Record, error)
	GetRecord(ctx context.Context, localID int64) (*models.Record, error)
	AttachmentsFor(ctx context.Context, ownerLocalID int64) ([]*models.Attachment, error)
	MarkSynced(ctx context.Context, localID int64, remoteID string) error
	MarkFailed(ctx context.Context, localID int64, reason string) error
}

// Pusher pushes one record and its attachments to the remote service.
type Pusher interface {
	Push(ctx context.Context, record *models.Record, attachments []*models.Attachment) (*remote.PushResult, error)
}

// Report aggregates one pass's outcome.
type Report struct {
	Synced int
	Failed int
}

// Orchestrator runs sync passes. Concurrent triggers while a pass is
// running are coalesced into no-ops, never queued.
type Orchestrator struct {
	store  Storage
	pusher Pusher
	delay  time.Duration
	log    logging.Logger

	running atomic.Bool
	trigger chan struct{}

	// onComplete, when set, receives every finished pass's report.
	onComplete func(Report)
}

// New constructs an Orchestrator. delay paces successive pushes within a
// pass; zero disables pacing.
func New(store Storage, pusher Pusher, delay time.Duration, log logging.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		pusher:  pusher,
		delay:   delay,
		log:     log,
		trigger: make(chan struct{}, 1),
	}
}

// OnComplete registers a callback invoked after every completed pass.
func (o *Orchestrator) OnComplete(fn func(Report)) {
	o.onComplete = fn
}

// TriggerSync requests an asynchronous pass. If one is already running or
// queued, the request is absorbed.
func (o *Orchestrator) TriggerSync() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Start runs the scheduling loop until ctx is cancelled: a pass on every
// interval tick and on every TriggerSync request.
func (o *Orchestrator) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.RunPass(ctx)
		case <-o.trigger:
			o.RunPass(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunPass executes one sync pass. It returns ok=false without doing
// anything when another pass is in flight. A single record's failure never
// aborts the pass; the record stays eligible for the next one.
func (o *Orchestrator) RunPass(ctx context.Context) (report Report, ok bool) {
	if !o.running.CompareAndSwap(false, true) {
		return Report{}, false
	}
	defer o.running.Store(false)

	pending, err := o.store.PendingRecords(ctx)
	if err != nil {
		o.log.Error(ctx, "cannot list pending records", "error", err)
		return Report{}, true
	}
	if len(pending) == 0 {
		return Report{}, true
	}

	o.log.Info(ctx, "sync pass started", "pending", len(pending))

	for i, stale := range pending {
		if ctx.Err() != nil {
			o.log.Warn(ctx, "sync pass cancelled", "remaining", len(pending)-i)
			break
		}
		if i > 0 && o.delay > 0 {
			select {
			case <-time.After(o.delay):
			case <-ctx.Done():
			}
		}
		if o.pushOne(ctx, stale.LocalID) {
			report.Synced++
		} else {
			report.Failed++
		}
	}

	o.log.Info(ctx, "sync pass finished", "synced", report.Synced, "failed", report.Failed)
	if o.onComplete != nil {
		o.onComplete(report)
	}
	return report, true
}

// pushOne re-reads the record (the snapshot from pass start may be stale),
// pushes it, and persists the outcome. The syncing state is an in-memory
// guard only; the store never sees it.
func (o *Orchestrator) pushOne(ctx context.Context, localID int64) bool {
	record, err := o.store.GetRecord(ctx, localID)
	if err != nil {
		o.log.Error(ctx, "cannot re-read record", "local_id", localID, "error", err)
		return false
	}
	if !record.Pending() {
		// already synced by an earlier trigger
		return true
	}
	record.SyncState = models.SyncStateSyncing

	attachments, err := o.store.AttachmentsFor(ctx, localID)
	if err != nil {
		o.log.Error(ctx, "cannot load attachments", "local_id", localID, "error", err)
		return false
	}

	res, err := o.pusher.Push(ctx, record, attachments)
	if err != nil {
		o.log.Warn(ctx, "push failed", "local_id", localID, "error", err)
		if merr := o.store.MarkFailed(ctx, localID, err.Error()); merr != nil {
			o.log.Error(ctx, "cannot record push failure", "local_id", localID, "error", merr)
		}
		return false
	}

	if err := o.store.MarkSynced(ctx, localID, res.RemoteID); err != nil {
		// push landed but the local write failed; next pass will re-read
		// the still-pending record and retry
		o.log.Error(ctx, "cannot persist synced state", "local_id", localID, "error", err)
		return false
	}

	o.log.Debug(ctx, "record synced", "local_id", localID, "remote_id", res.RemoteID)
	return true
}
