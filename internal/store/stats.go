package store

import (
	"context"
	"fmt"
	"time"

	"github.com/example/fieldsync/internal/models"
)

// Stats summarizes the local store for status displays.
type Stats struct {
	Total  int64
	Synced int64
	// Pending counts records awaiting a push, including failed ones.
	Pending int64
	// RecentParticipants is the participant total for sessions held in
	// the last 7 days.
	RecentParticipants int64
}

// Stats computes summary counts over the local store.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN sync_state = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sync_state IN (?, ?) THEN 1 ELSE 0 END), 0)
		FROM sessions`,
		models.SyncStateSynced, models.SyncStatePending, models.SyncStateFailed).
		Scan(&st.Total, &st.Synced, &st.Pending)
	if err != nil {
		return nil, fmt.Errorf("stats counts: %w", err)
	}

	weekAgo := time.Now().AddDate(0, 0, -7).Format("2006-01-02")
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(male_participants + female_participants), 0)
		FROM sessions WHERE session_date >= ?`, weekAgo).
		Scan(&st.RecentParticipants)
	if err != nil {
		return nil, fmt.Errorf("stats participants: %w", err)
	}

	return st, nil
}
