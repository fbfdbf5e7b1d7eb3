// Package store implements the durable local store for captured sessions
// and their photos, backed by SQLite. It is the only owner of persisted
// state; every mutation goes through its contract.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/fieldsync/internal/common"
	"github.com/example/fieldsync/internal/dbx"
	"github.com/example/fieldsync/internal/logging"
	"github.com/example/fieldsync/internal/models"
	"github.com/example/fieldsync/internal/store/migrations"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

// Store is the SQLite-backed durable store.
type Store struct {
	db  *sql.DB
	log logging.Logger
}

// Open opens (or creates) the database at dsn, applies migrations and runs
// a write/delete self-test. The whole sequence is bounded by openTimeout:
// a schema upgrade blocked behind another process holding the file is
// retried with backoff until the deadline, then reported as
// common.ErrStoreUnavailable. An opened-but-unwritable database is treated
// the same way.
func Open(ctx context.Context, dsn string, openTimeout time.Duration, log logging.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}

	s := &Store{db: db, log: log}

	backoff := retry.WithMaxDuration(openTimeout, retry.NewFibonacci(100*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := runMigrations(ctx, db); err != nil {
			if isBusy(err) {
				log.Warn(ctx, "schema upgrade blocked, retrying", "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrations: %v", common.ErrStoreUnavailable, err)
	}

	if err := s.selfTest(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: self-test: %v", common.ErrStoreUnavailable, err)
	}

	return s, nil
}

// runMigrations sets up goose with the embedded migrations and applies them.
func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// selfTest performs one write/delete cycle to confirm the store is actually
// writable, not merely open. It uses the reserved sync_queue table so the
// probe never touches real data.
func (s *Store) selfTest(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_queue (session_local_id, enqueued_at) VALUES (0, ?)`,
		time.Now().UTC().Format(timeFormat))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRecord persists a record and all of its attachments in one
// transaction: either everything commits or nothing does, so a crash can
// never leave a photo referencing a session that was not saved. Returns the
// assigned local id.
func (s *Store) SaveRecord(ctx context.Context, body models.SessionBody, attachments []*models.Attachment) (int64, error) {
	var localID int64

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (school_name, session_type, location, activator, year_group,
				male_participants, female_participants, teacher_feedback, session_date,
				session_duration, latitude, longitude, created_at, sync_state)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			body.SchoolName, body.SessionType, body.Location, body.Activator, body.YearGroup,
			body.MaleParticipants, body.FemaleParticipants, nullString(body.TeacherFeedback),
			body.SessionDate, body.SessionDuration, nullFloat(body.Latitude), nullFloat(body.Longitude),
			time.Now().UTC().Format(timeFormat), models.SyncStatePending)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		localID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		for _, a := range attachments {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO photos (session_local_id, file_name, stored_name, content_type, data, size, created_at, sync_state)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				localID, a.FileName, a.StoredName, a.ContentType, a.Data, int64(len(a.Data)),
				time.Now().UTC().Format(timeFormat), models.SyncStatePending)
			if err != nil {
				return fmt.Errorf("insert photo %s: %w", a.FileName, err)
			}
			a.OwnerLocalID = localID
			a.Size = int64(len(a.Data))
			a.LocalID, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStoreWriteFailed, err)
	}
	return localID, nil
}

const recordColumns = `id, school_name, session_type, location, activator, year_group,
	male_participants, female_participants, teacher_feedback, session_date,
	session_duration, latitude, longitude, created_at, sync_state, remote_id, fail_reason`

func scanRecord(rows interface{ Scan(...any) error }) (*models.Record, error) {
	r := &models.Record{}
	var feedback, remoteID, failReason sql.NullString
	var lat, lng sql.NullFloat64
	var createdAt string
	if err := rows.Scan(
		&r.LocalID, &r.Body.SchoolName, &r.Body.SessionType, &r.Body.Location,
		&r.Body.Activator, &r.Body.YearGroup, &r.Body.MaleParticipants,
		&r.Body.FemaleParticipants, &feedback, &r.Body.SessionDate,
		&r.Body.SessionDuration, &lat, &lng,
		&createdAt, &r.SyncState, &remoteID, &failReason,
	); err != nil {
		return nil, err
	}
	r.Body.TeacherFeedback = feedback.String
	r.RemoteID = remoteID.String
	r.FailReason = failReason.String
	if lat.Valid {
		r.Body.Latitude = &lat.Float64
	}
	if lng.Valid {
		r.Body.Longitude = &lng.Float64
	}
	if t, err := time.Parse(timeFormat, createdAt); err == nil {
		r.CreatedAt = t
	}
	return r, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// PendingRecords returns every record still awaiting a successful push.
// Order is an implementation artifact; callers must not assume FIFO.
//
// The fast path pins the sync-state index; databases created by older
// schemas (or with the index dropped) make that query fail, in which case
// the result comes from a full scan-and-filter instead of failing the pass.
func (s *Store) PendingRecords(ctx context.Context) ([]*models.Record, error) {
	records, err := s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM sessions INDEXED BY idx_sessions_sync_state
		WHERE sync_state IN (?, ?)`,
		models.SyncStatePending, models.SyncStateFailed)
	if err == nil {
		return records, nil
	}
	s.log.Warn(ctx, "indexed pending query failed, falling back to full scan", "error", err)

	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending fallback scan: %w", err)
	}
	var pending []*models.Record
	for _, r := range all {
		if r.Pending() {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

// ListAll returns every record, newest first.
func (s *Store) ListAll(ctx context.Context) ([]*models.Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM sessions ORDER BY created_at DESC`)
}

// GetRecord returns one record by local id.
func (s *Store) GetRecord(ctx context.Context, localID int64) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM sessions WHERE id = ?`, localID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %d: %w", localID, err)
	}
	return r, nil
}

// AttachmentsFor returns all attachments owned by the given record.
func (s *Store) AttachmentsFor(ctx context.Context, ownerLocalID int64) ([]*models.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_local_id, file_name, stored_name, content_type, data, size, sync_state, created_at
		FROM photos WHERE session_local_id = ?`, ownerLocalID)
	if err != nil {
		return nil, fmt.Errorf("select photos: %w", err)
	}
	defer rows.Close()

	var result []*models.Attachment
	for rows.Next() {
		a := &models.Attachment{}
		var contentType sql.NullString
		var createdAt string
		if err := rows.Scan(&a.LocalID, &a.OwnerLocalID, &a.FileName, &a.StoredName,
			&contentType, &a.Data, &a.Size, &a.SyncState, &createdAt); err != nil {
			return nil, err
		}
		a.ContentType = contentType.String
		if t, err := time.Parse(timeFormat, createdAt); err == nil {
			a.CreatedAt = t
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// MarkSynced records a successful push: the record gets the server-assigned
// id and state synced, and all of its attachments are marked synced in the
// same transaction. An attachment is therefore never synced ahead of its
// owner.
func (s *Store) MarkSynced(ctx context.Context, localID int64, remoteID string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE sessions SET sync_state = ?, remote_id = ?, fail_reason = NULL, synced_at = ?
			WHERE id = ?`,
			models.SyncStateSynced, remoteID, time.Now().UTC().Format(timeFormat), localID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return common.ErrNotFound
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE photos SET sync_state = ? WHERE session_local_id = ?`,
			models.SyncStateSynced, localID)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: mark synced %d: %v", common.ErrStoreWriteFailed, localID, err)
	}
	return nil
}

// MarkFailed records a failed push attempt. The record stays eligible for
// the next pass; the reason is informational.
func (s *Store) MarkFailed(ctx context.Context, localID int64, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET sync_state = ?, fail_reason = ? WHERE id = ?`,
		models.SyncStateFailed, reason, localID)
	if err != nil {
		return fmt.Errorf("%w: mark failed %d: %v", common.ErrStoreWriteFailed, localID, err)
	}
	return nil
}

// SweepExpired deletes synced records (and their photos) whose sync
// completed before now-retention. Records still pending or failed are never
// touched, regardless of age. Returns the number of records removed.
func (s *Store) SweepExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(timeFormat)

	var removed int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM photos WHERE session_local_id IN (
				SELECT id FROM sessions WHERE sync_state = ? AND synced_at IS NOT NULL AND synced_at < ?
			)`, models.SyncStateSynced, cutoff)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM sessions WHERE sync_state = ? AND synced_at IS NOT NULL AND synced_at < ?`,
			models.SyncStateSynced, cutoff)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: sweep: %v", common.ErrStoreWriteFailed, err)
	}
	return removed, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
