package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/fieldsync/internal/common"
	"github.com/example/fieldsync/internal/models"
)

// RecordCmd captures a session (and optional photos) into the local store.
func RecordCmd() *cobra.Command {
	var body models.SessionBody
	var lat, lng float64
	var photos []string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a session locally; it syncs when connectivity allows",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("lat") {
				body.Latitude = &lat
			}
			if cmd.Flags().Changed("lng") {
				body.Longitude = &lng
			}

			var attachments []*models.Attachment
			for _, path := range photos {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading photo %s: %w", path, err)
				}
				attachments = append(attachments, &models.Attachment{
					FileName: filepath.Base(path),
					Data:     data,
				})
			}

			ctx := cmd.Context()
			e, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			localID, err := e.Ingest(ctx, body, attachments)
			if err != nil {
				if errors.Is(err, common.ErrValidation) {
					return fmt.Errorf("session rejected: %w", err)
				}
				return err
			}

			fmt.Printf("Session saved locally (id %d, %d photos).\n", localID, len(attachments))
			if e.Online() {
				fmt.Println("Online: upload started.")
			} else {
				color.Yellow("Offline: the session will sync automatically when connectivity returns.")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&body.SchoolName, "school", "", "school name")
	f.StringVar(&body.SessionType, "type", "", "session type")
	f.StringVar(&body.Location, "location", "", "session location")
	f.StringVar(&body.Activator, "activator", "", "activator name")
	f.StringVar(&body.YearGroup, "year-group", "", "year group, e.g. 'Year 5-6'")
	f.IntVar(&body.MaleParticipants, "male", 0, "male participant count")
	f.IntVar(&body.FemaleParticipants, "female", 0, "female participant count")
	f.StringVar(&body.TeacherFeedback, "feedback", "", "teacher feedback (optional)")
	f.StringVar(&body.SessionDate, "date", "", "session date (YYYY-MM-DD)")
	f.IntVar(&body.SessionDuration, "duration", 0, "session duration in minutes")
	f.Float64Var(&lat, "lat", 0, "latitude (optional)")
	f.Float64Var(&lng, "lng", 0, "longitude (optional)")
	f.StringArrayVar(&photos, "photo", nil, "photo file to attach (repeatable)")

	return cmd
}
