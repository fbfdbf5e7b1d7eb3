// Package models defines the data types persisted by the local store and
// pushed to the remote service.
package models

import "time"

// SyncState is the sync lifecycle of a locally captured record.
type SyncState string

const (
	// SyncStatePending means the record is saved locally and awaits upload.
	SyncStatePending SyncState = "pending"
	// SyncStateSyncing is an in-memory guard while a push is in flight.
	// It is never persisted: a crash mid-push must reload as pending.
	SyncStateSyncing SyncState = "syncing"
	// SyncStateSynced means the remote accepted the record.
	SyncStateSynced SyncState = "synced"
	// SyncStateFailed marks a record whose last push failed. Failed records
	// stay eligible for the next pass.
	SyncStateFailed SyncState = "failed"
)

// SessionBody holds the caller-supplied fields of a coaching session.
// JSON tags match the remote API's wire format.
type SessionBody struct {
	SchoolName         string   `json:"school_name"`
	SessionType        string   `json:"session_type"`
	Location           string   `json:"location"`
	Activator          string   `json:"activator"`
	YearGroup          string   `json:"year_group"`
	MaleParticipants   int      `json:"male_participants"`
	FemaleParticipants int      `json:"female_participants"`
	TeacherFeedback    string   `json:"teacher_feedback,omitempty"`
	SessionDate        string   `json:"session_date"`
	SessionDuration    int      `json:"session_duration"`
	Latitude           *float64 `json:"latitude,omitempty"`
	Longitude          *float64 `json:"longitude,omitempty"`
}

// TotalParticipants returns the combined participant count.
func (b SessionBody) TotalParticipants() int {
	return b.MaleParticipants + b.FemaleParticipants
}

// Record is a session captured locally, plus the engine-managed sync
// metadata. LocalID is assigned by the store at insertion and never reused.
type Record struct {
	LocalID   int64
	Body      SessionBody
	CreatedAt time.Time
	SyncState SyncState
	// RemoteID is the server-assigned identifier, set only after a
	// successful push.
	RemoteID string
	// FailReason holds the last push failure, informational only.
	FailReason string
}

// Pending reports whether the record still needs to be pushed.
func (r *Record) Pending() bool {
	return r.SyncState == SyncStatePending || r.SyncState == SyncStateFailed
}

// Attachment is a binary payload (a photo) owned by exactly one Record.
// An attachment is never pushed before its owner has a remote id.
type Attachment struct {
	LocalID      int64
	OwnerLocalID int64
	// FileName is the caller's original file name.
	FileName string
	// StoredName is the unique name used on upload.
	StoredName  string
	ContentType string
	Data        []byte
	Size        int64
	SyncState   SyncState
	CreatedAt   time.Time
}
