// Package engine is the public entry point of fieldsync: it composes the
// durable store, connectivity monitor, protocol client and sync
// orchestrator behind one facade. External collaborators (CLIs, status
// displays) talk only to the Engine.
package engine

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/fieldsync/internal/common"
	"github.com/example/fieldsync/internal/config"
	"github.com/example/fieldsync/internal/connectivity"
	"github.com/example/fieldsync/internal/logging"
	"github.com/example/fieldsync/internal/models"
	"github.com/example/fieldsync/internal/remote"
	"github.com/example/fieldsync/internal/store"
	"github.com/example/fieldsync/internal/syncer"
)

// sweepInterval is how often the retention sweep runs in the background.
const sweepInterval = 6 * time.Hour

// Engine is one offline-first capture-and-sync instance. Construct it once
// per process and pass it by reference; there is no implicit global.
type Engine struct {
	cfg *config.Config
	log logging.Logger

	mu          sync.Mutex
	initialized bool
	initErr     error
	warnings    []string

	store   *store.Store
	client  *remote.Client
	monitor *connectivity.Monitor
	orch    *syncer.Orchestrator
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	cbMu            sync.Mutex
	onConnectivity  []func(online bool)
	onPassCompleted []func(synced, failed int)
	onPendingCount  []func(count int)
}

// New constructs an Engine. Call Initialize before anything else.
func New(cfg *config.Config, log logging.Logger) *Engine {
	return &Engine{cfg: cfg, log: log}
}

// Initialize opens the durable store, establishes connectivity monitoring
// and starts the background sync schedule. It is idempotent: once it has
// succeeded, later calls return nil immediately. Calls are serialized, so
// concurrent callers await the single in-flight attempt's outcome. After a
// failure the stored error is reported by Ready and every operation until a
// later Initialize call succeeds.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}

	e.initErr = e.initialize(ctx)
	if e.initErr != nil {
		return e.initErr
	}
	e.initialized = true
	return nil
}

func (e *Engine) initialize(ctx context.Context) error {
	e.warnings = e.capabilityCheck()

	s, err := store.Open(ctx, e.cfg.DBPath, e.cfg.OpenTimeout, e.log)
	if err != nil {
		e.log.Error(ctx, "store initialization failed", "error", err)
		return err
	}
	e.store = s

	e.client = remote.NewClient(e.cfg.Endpoint, e.cfg.PushTimeout)
	e.monitor = connectivity.NewMonitor(ctx, e.client, e.cfg.ProbeInterval, e.log)
	e.orch = syncer.New(s, e.client, e.cfg.InterPushDelay, e.log)

	e.orch.OnComplete(func(r syncer.Report) {
		e.notifyPassCompleted(r.Synced, r.Failed)
		e.notifyPendingCount(context.Background())
	})
	e.monitor.Subscribe(func(online bool) {
		e.notifyConnectivity(online)
		if online {
			e.orch.TriggerSync()
		}
	})

	bg, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(3)
	go func() {
		defer e.wg.Done()
		e.monitor.Start(bg)
	}()
	go func() {
		defer e.wg.Done()
		e.orch.Start(bg, e.cfg.SyncInterval)
	}()
	go func() {
		defer e.wg.Done()
		e.sweepLoop(bg)
	}()

	// initialization completing while online counts as a sync trigger
	if e.monitor.Online() {
		e.orch.TriggerSync()
	}

	e.log.Info(ctx, "engine initialized",
		"db", e.cfg.DBPath, "endpoint", e.cfg.Endpoint, "online", e.monitor.Online())
	return nil
}

// capabilityCheck probes the environment once, best-effort. Problems become
// warnings on the init result, never control flow.
func (e *Engine) capabilityCheck() []string {
	var warnings []string

	dir := filepath.Dir(e.cfg.DBPath)
	probe := filepath.Join(dir, ".fieldsync-probe-"+uuid.NewString())
	if err := os.WriteFile(probe, []byte("probe"), 0o600); err != nil {
		warnings = append(warnings, fmt.Sprintf("storage directory may be restricted: %v", err))
	} else {
		_ = os.Remove(probe)
	}

	return warnings
}

// Ready reports whether initialization succeeded and the store is confirmed
// writable.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// Warnings returns non-fatal findings from the initialization capability
// check.
func (e *Engine) Warnings() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.warnings...)
}

// Online reports the current connectivity state.
func (e *Engine) Online() bool {
	if !e.Ready() {
		return false
	}
	return e.monitor.Online()
}

// Resume signals that the process regained foreground; connectivity is
// re-probed immediately.
func (e *Engine) Resume() {
	if e.Ready() {
		e.monitor.Resume()
	}
}

func (e *Engine) notReady() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}
	if e.initErr != nil {
		return fmt.Errorf("%w: %w", common.ErrNotReady, e.initErr)
	}
	return common.ErrNotReady
}

// Ingest validates and persists a record with its attachments in one
// transaction, returning the assigned local id. Offline is not an error:
// the record lands locally as pending and the next pass uploads it. A
// store failure is reported to the caller, never swallowed.
func (e *Engine) Ingest(ctx context.Context, body models.SessionBody, attachments []*models.Attachment) (int64, error) {
	if err := e.notReady(); err != nil {
		return 0, err
	}

	if err := body.Validate(); err != nil {
		return 0, err
	}
	for _, a := range attachments {
		if err := a.Validate(); err != nil {
			return 0, err
		}
		a.StoredName = uuid.NewString() + strings.ToLower(filepath.Ext(a.FileName))
		if a.ContentType == "" {
			a.ContentType = mime.TypeByExtension(filepath.Ext(a.FileName))
		}
		if int64(len(a.Data)) > e.cfg.AttachmentSizeWarning {
			e.log.Warn(ctx, "large attachment", "file", a.FileName, "size", len(a.Data))
		}
	}

	localID, err := e.store.SaveRecord(ctx, body, attachments)
	if err != nil {
		return 0, err
	}

	e.log.Info(ctx, "record ingested", "local_id", localID, "attachments", len(attachments))
	e.notifyPendingCount(ctx)

	if e.monitor.Online() {
		e.orch.TriggerSync()
	}
	return localID, nil
}

// SyncNow runs a sync pass immediately. It fails fast with a descriptive
// reason when the engine is not ready or offline, and reports
// ErrSyncRunning when a pass is already in flight (the running pass will
// cover the pending records anyway).
func (e *Engine) SyncNow(ctx context.Context) (syncer.Report, error) {
	if err := e.notReady(); err != nil {
		return syncer.Report{}, err
	}
	if !e.monitor.Online() {
		return syncer.Report{}, fmt.Errorf("%w: cannot sync while offline", common.ErrOffline)
	}

	report, ok := e.orch.RunPass(ctx)
	if !ok {
		return syncer.Report{}, common.ErrSyncRunning
	}
	return report, nil
}

// PushDirect submits a record straight to the remote service, bypassing the
// local store. It exists for callers that decide to keep working without
// offline capability after initialization failed with a store error.
// Nothing is persisted locally; the server-assigned id is returned.
func (e *Engine) PushDirect(ctx context.Context, body models.SessionBody, attachments []*models.Attachment) (string, error) {
	if err := body.Validate(); err != nil {
		return "", err
	}
	for _, a := range attachments {
		if err := a.Validate(); err != nil {
			return "", err
		}
		a.StoredName = uuid.NewString() + strings.ToLower(filepath.Ext(a.FileName))
		if a.ContentType == "" {
			a.ContentType = mime.TypeByExtension(filepath.Ext(a.FileName))
		}
	}

	client := e.client
	if client == nil {
		client = remote.NewClient(e.cfg.Endpoint, e.cfg.PushTimeout)
	}
	res, err := client.Push(ctx, &models.Record{Body: body}, attachments)
	if err != nil {
		return "", err
	}
	return res.RemoteID, nil
}

// ListPending returns a read-only snapshot of records awaiting upload.
func (e *Engine) ListPending(ctx context.Context) ([]*models.Record, error) {
	if err := e.notReady(); err != nil {
		return nil, err
	}
	return e.store.PendingRecords(ctx)
}

// ListAll returns a read-only snapshot of every local record.
func (e *Engine) ListAll(ctx context.Context) ([]*models.Record, error) {
	if err := e.notReady(); err != nil {
		return nil, err
	}
	return e.store.ListAll(ctx)
}

// Attachments returns the attachments owned by a record.
func (e *Engine) Attachments(ctx context.Context, localID int64) ([]*models.Attachment, error) {
	if err := e.notReady(); err != nil {
		return nil, err
	}
	return e.store.AttachmentsFor(ctx, localID)
}

// Stats returns summary counts for status displays.
func (e *Engine) Stats(ctx context.Context) (*store.Stats, error) {
	if err := e.notReady(); err != nil {
		return nil, err
	}
	return e.store.Stats(ctx)
}

// SweepExpired removes synced records older than the retention window.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	if err := e.notReady(); err != nil {
		return 0, err
	}
	return e.store.SweepExpired(ctx, e.cfg.Retention)
}

func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := e.store.SweepExpired(ctx, e.cfg.Retention)
			if err != nil {
				e.log.Error(ctx, "retention sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				e.log.Info(ctx, "retention sweep removed records", "count", removed)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close stops background work and closes the store. The engine cannot be
// reused afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil
	}
	e.cancel()
	e.wg.Wait()
	e.initialized = false
	e.initErr = fmt.Errorf("%w: engine closed", common.ErrNotReady)
	return e.store.Close()
}

// OnConnectivityChanged registers a collaborator callback for
// online/offline transitions.
func (e *Engine) OnConnectivityChanged(fn func(online bool)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onConnectivity = append(e.onConnectivity, fn)
}

// OnSyncPassCompleted registers a collaborator callback receiving the
// aggregate counts of every finished pass.
func (e *Engine) OnSyncPassCompleted(fn func(synced, failed int)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onPassCompleted = append(e.onPassCompleted, fn)
}

// OnPendingCountChanged registers a collaborator callback receiving the
// pending-record count whenever it may have changed.
func (e *Engine) OnPendingCountChanged(fn func(count int)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onPendingCount = append(e.onPendingCount, fn)
}

func (e *Engine) notifyConnectivity(online bool) {
	e.cbMu.Lock()
	subs := slices.Clone(e.onConnectivity)
	e.cbMu.Unlock()
	for _, fn := range subs {
		fn(online)
	}
}

func (e *Engine) notifyPassCompleted(synced, failed int) {
	e.cbMu.Lock()
	subs := slices.Clone(e.onPassCompleted)
	e.cbMu.Unlock()
	for _, fn := range subs {
		fn(synced, failed)
	}
}

func (e *Engine) notifyPendingCount(ctx context.Context) {
	e.cbMu.Lock()
	subs := slices.Clone(e.onPendingCount)
	e.cbMu.Unlock()
	if len(subs) == 0 {
		return
	}

	pending, err := e.store.PendingRecords(ctx)
	if err != nil {
		e.log.Error(ctx, "cannot count pending records", "error", err)
		return
	}
	for _, fn := range subs {
		fn(len(pending))
	}
}
