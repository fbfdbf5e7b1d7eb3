package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/fieldsync/internal/common"
	"github.com/example/fieldsync/internal/logging"
	"github.com/example/fieldsync/internal/models"
	"github.com/example/fieldsync/internal/remote"
	"github.com/example/fieldsync/internal/store"
)

// fakePusher records calls and fails pushes for selected local ids.
type fakePusher struct {
	mu      sync.Mutex
	calls   map[int64]int
	failFor map[int64]bool
	block   chan struct{} // when set, Push waits until closed
	nextID  int
}

func newFakePusher() *fakePusher {
	return &fakePusher{calls: map[int64]int{}, failFor: map[int64]bool{}}
}

func (p *fakePusher) Push(ctx context.Context, r *models.Record, atts []*models.Attachment) (*remote.PushResult, error) {
	p.mu.Lock()
	p.calls[r.LocalID]++
	fail := p.failFor[r.LocalID]
	block := p.block
	p.nextID++
	id := fmt.Sprintf("srv-%d", p.nextID)
	p.mu.Unlock()

	if block != nil {
		<-block
	}
	if fail {
		return nil, fmt.Errorf("%w: connection reset", common.ErrPushFailed)
	}
	return &remote.PushResult{RemoteID: id}, nil
}

func (p *fakePusher) callCount(id int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

func testBody() models.SessionBody {
	return models.SessionBody{
		SchoolName:         "Dunedin Academy",
		SessionType:        "In2Cricket Taster",
		Location:           "Main Hall",
		Activator:          "David Lee",
		YearGroup:          "Year 7-8",
		MaleParticipants:   20,
		FemaleParticipants: 18,
		SessionDate:        "2025-01-15",
		SessionDuration:    120,
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(),
		filepath.Join(t.TempDir(), "sync.db"), 5*time.Second, logging.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunPass_SyncsAllPending(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	pusher := newFakePusher()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.SaveRecord(ctx, testBody(), nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	o := New(s, pusher, 0, logging.Nop{})
	report, ok := o.RunPass(ctx)
	require.True(t, ok)
	assert.Equal(t, Report{Synced: 3, Failed: 0}, report)

	pending, err := s.PendingRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	for _, id := range ids {
		r, err := s.GetRecord(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.SyncStateSynced, r.SyncState)
		assert.NotEmpty(t, r.RemoteID)
	}
}

func TestRunPass_PartialFailureIsolation(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	pusher := newFakePusher()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.SaveRecord(ctx, testBody(), nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	pusher.failFor[ids[1]] = true

	o := New(s, pusher, 0, logging.Nop{})
	report, ok := o.RunPass(ctx)
	require.True(t, ok)
	assert.Equal(t, Report{Synced: 2, Failed: 1}, report)

	pending, err := s.PendingRecords(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[1], pending[0].LocalID)
	assert.Contains(t, pending[0].FailReason, "connection reset")

	// every record was attempted despite the failure in the middle
	for _, id := range ids {
		assert.Equal(t, 1, pusher.callCount(id))
	}
}

func TestRunPass_FailedAttachmentsStayUnsynced(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	pusher := newFakePusher()

	id, err := s.SaveRecord(ctx, testBody(), []*models.Attachment{
		{FileName: "a.jpg", StoredName: "u1.jpg", Data: []byte("x")},
		{FileName: "b.jpg", StoredName: "u2.jpg", Data: []byte("y")},
	})
	require.NoError(t, err)
	pusher.failFor[id] = true

	o := New(s, pusher, 0, logging.Nop{})
	report, _ := o.RunPass(ctx)
	assert.Equal(t, Report{Failed: 1}, report)

	atts, err := s.AttachmentsFor(ctx, id)
	require.NoError(t, err)
	for _, a := range atts {
		assert.Equal(t, models.SyncStatePending, a.SyncState)
	}

	// next pass retries session and photos together
	pusher.failFor[id] = false
	report, _ = o.RunPass(ctx)
	assert.Equal(t, Report{Synced: 1}, report)

	atts, err = s.AttachmentsFor(ctx, id)
	require.NoError(t, err)
	for _, a := range atts {
		assert.Equal(t, models.SyncStateSynced, a.SyncState)
	}
	assert.Equal(t, 2, pusher.callCount(id))
}

func TestRunPass_IdempotentOverSyncedRecords(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	pusher := newFakePusher()

	id, err := s.SaveRecord(ctx, testBody(), nil)
	require.NoError(t, err)

	o := New(s, pusher, 0, logging.Nop{})
	_, ok := o.RunPass(ctx)
	require.True(t, ok)
	_, ok = o.RunPass(ctx)
	require.True(t, ok)

	assert.Equal(t, 1, pusher.callCount(id))
}

func TestRunPass_AtMostOneConcurrentPass(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id, err := s.SaveRecord(ctx, testBody(), nil)
	require.NoError(t, err)

	pusher := newFakePusher()
	pusher.block = make(chan struct{})

	o := New(s, pusher, 0, logging.Nop{})

	done := make(chan Report, 1)
	go func() {
		report, _ := o.RunPass(ctx)
		done <- report
	}()

	// wait until the first pass is inside Push
	require.Eventually(t, func() bool { return pusher.callCount(id) == 1 },
		2*time.Second, 5*time.Millisecond)

	// a trigger during the running pass must coalesce into a no-op
	report, ok := o.RunPass(ctx)
	assert.False(t, ok)
	assert.Zero(t, report)

	close(pusher.block)
	first := <-done
	assert.Equal(t, Report{Synced: 1}, first)
	assert.Equal(t, 1, pusher.callCount(id), "record must not be double-pushed")
}

func TestRunPass_ReportsViaOnComplete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	pusher := newFakePusher()

	_, err := s.SaveRecord(ctx, testBody(), nil)
	require.NoError(t, err)

	o := New(s, pusher, 0, logging.Nop{})
	var got Report
	o.OnComplete(func(r Report) { got = r })

	_, ok := o.RunPass(ctx)
	require.True(t, ok)
	assert.Equal(t, Report{Synced: 1}, got)
}

func TestStart_TriggerSyncRunsAPass(t *testing.T) {
	s := openStore(t)
	pusher := newFakePusher()

	id, err := s.SaveRecord(context.Background(), testBody(), nil)
	require.NoError(t, err)

	o := New(s, pusher, 0, logging.Nop{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Start(ctx, time.Hour)

	o.TriggerSync()
	require.Eventually(t, func() bool { return pusher.callCount(id) == 1 },
		2*time.Second, 5*time.Millisecond)
}
