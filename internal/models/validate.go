package models

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/example/fieldsync/internal/common"
)

// MaxAttachmentSize is the hard per-file cap enforced by the remote service.
const MaxAttachmentSize = 5 * 1024 * 1024

var activatorNameRe = regexp.MustCompile(`^[a-zA-Z\s\-\.]+$`)

var validYearGroups = map[string]struct{}{
	"Year 1-2":   {},
	"Year 3-4":   {},
	"Year 5-6":   {},
	"Year 7-8":   {},
	"Year 9-10":  {},
	"Year 11-13": {},
	"Mixed":      {},
}

var allowedAttachmentExts = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
}

// Validate checks the session body against the remote service's rules so
// invalid records never enter the sync queue. The returned error wraps
// common.ErrValidation and lists every violation.
func (b SessionBody) Validate() error {
	var errs []string

	checkText := func(name, value string, min, max int) {
		v := strings.TrimSpace(value)
		if v == "" {
			errs = append(errs, name+" is required")
			return
		}
		if len(v) < min {
			errs = append(errs, fmt.Sprintf("%s must be at least %d characters long", name, min))
		}
		if len(v) > max {
			errs = append(errs, fmt.Sprintf("%s must be less than %d characters", name, max))
		}
	}

	checkText("school name", b.SchoolName, 2, 100)
	checkText("session type", b.SessionType, 2, 50)
	checkText("location", b.Location, 2, 100)
	checkText("activator name", b.Activator, 2, 50)

	if v := strings.TrimSpace(b.Activator); v != "" && !activatorNameRe.MatchString(v) {
		errs = append(errs, "activator name can only contain letters, spaces, hyphens, and periods")
	}

	if b.YearGroup == "" {
		errs = append(errs, "year group is required")
	} else if _, ok := validYearGroups[b.YearGroup]; !ok {
		errs = append(errs, "invalid year group")
	}

	if b.MaleParticipants < 0 {
		errs = append(errs, "male participants cannot be negative")
	} else if b.MaleParticipants > 1000 {
		errs = append(errs, "male participants too high (max 1000)")
	}
	if b.FemaleParticipants < 0 {
		errs = append(errs, "female participants cannot be negative")
	} else if b.FemaleParticipants > 1000 {
		errs = append(errs, "female participants too high (max 1000)")
	}
	if total := b.TotalParticipants(); b.MaleParticipants >= 0 && b.FemaleParticipants >= 0 {
		if total == 0 {
			errs = append(errs, "total participants must be greater than 0")
		} else if total > 2000 {
			errs = append(errs, "total participants too high (max 2000)")
		}
	}

	if b.SessionDuration <= 0 {
		errs = append(errs, "session duration must be greater than 0 minutes")
	} else if b.SessionDuration > 480 {
		errs = append(errs, "session duration too long (max 8 hours)")
	}

	if b.SessionDate == "" {
		errs = append(errs, "session date is required")
	} else if d, err := time.Parse("2006-01-02", b.SessionDate); err != nil {
		errs = append(errs, "session date must be in YYYY-MM-DD format")
	} else {
		if d.After(time.Now()) {
			errs = append(errs, "session date cannot be in the future")
		}
		if d.Before(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
			errs = append(errs, "session date too old")
		}
	}

	if b.Latitude != nil && (*b.Latitude < -90 || *b.Latitude > 90) {
		errs = append(errs, "latitude must be between -90 and 90")
	}
	if b.Longitude != nil && (*b.Longitude < -180 || *b.Longitude > 180) {
		errs = append(errs, "longitude must be between -180 and 180")
	}

	if len(b.TeacherFeedback) > 1000 {
		errs = append(errs, "teacher feedback must be less than 1000 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", common.ErrValidation, strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the attachment's file name and size against the remote
// service's upload rules.
func (a *Attachment) Validate() error {
	ext := strings.ToLower(filepath.Ext(a.FileName))
	if _, ok := allowedAttachmentExts[ext]; !ok {
		return fmt.Errorf("%w: file type not allowed for %s", common.ErrValidation, a.FileName)
	}
	if len(a.Data) == 0 {
		return fmt.Errorf("%w: file %s is empty", common.ErrValidation, a.FileName)
	}
	if len(a.Data) > MaxAttachmentSize {
		return fmt.Errorf("%w: file %s is too large (max 5MB)", common.ErrValidation, a.FileName)
	}
	return nil
}
