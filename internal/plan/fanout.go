package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Charugundlavipul/soapai-cli/internal/api"
	"github.com/Charugundlavipul/soapai-cli/internal/document"
)

// DefaultVisitNote is the note attached to auto-appended visit records.
const DefaultVisitNote = "Activity plan generated during session."

// ErrFanoutPartial is the aggregate failure for the per-member batch.
// Individual call failures are logged, not attributed in the error;
// completed side effects for other members are not rolled back.
var ErrFanoutPartial = errors.New("saving the plan failed for one or more members")

// Fanout persists a confirmed plan's side effects: it rasterizes the
// edited document to a PDF, saves it locally, then for every member
// replaces matching materials, appends a visit record, and patches goal
// progress.
type Fanout struct {
	backend       Backend
	appointmentID string
	outputDir     string
	sessionType   string
	now           func() time.Time
}

// NewFanout creates a Fanout writing PDFs under outputDir.
func NewFanout(backend Backend, appointmentID, outputDir, sessionType string) *Fanout {
	return &Fanout{
		backend:       backend,
		appointmentID: appointmentID,
		outputDir:     outputDir,
		sessionType:   sessionType,
		now:           time.Now,
	}
}

// Run executes the fan-out for the confirmed activity. The PDF must exist
// before any per-member call is issued; a rendering failure aborts the
// batch entirely (the activity itself stays persisted server-side). The
// per-member calls run as one concurrent batch: a failing call never
// cancels its siblings, and all of them are attempted for every member.
// Returns the local PDF path.
func (f *Fanout) Run(ctx context.Context, activity *api.Activity, goals []string, doc *document.Document) (string, error) {
	pdf, err := document.RenderPDF(doc)
	if err != nil {
		return "", fmt.Errorf("render plan pdf: %w", err)
	}

	visitDate := f.now().Format("2006-01-02")
	slug := Slug(activity.Name)
	filename := document.MaterialFilename(f.now(), slug)

	if err := os.MkdirAll(f.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	localPath := filepath.Join(f.outputDir, filename)
	if err := os.WriteFile(localPath, pdf, 0o644); err != nil {
		return "", fmt.Errorf("save plan pdf: %w", err)
	}

	var group errgroup.Group
	for _, member := range activity.Members {
		member := member

		group.Go(func() error {
			if err := f.replaceMaterial(ctx, member, slug, visitDate, filename, pdf); err != nil {
				slog.Error("material upload failed", "member", member, "activity", slug, "error", err)
				return err
			}
			return nil
		})

		group.Go(func() error {
			visit := api.Visit{
				Date:        visitDate,
				Appointment: f.appointmentID,
				SessionType: f.sessionType,
				Note:        DefaultVisitNote,
				AIInsights:  []string{},
				Activity:    activity.ID,
			}
			if err := f.backend.AppendVisit(ctx, member, visit); err != nil {
				slog.Error("visit append failed", "member", member, "error", err)
				return err
			}
			return nil
		})

		group.Go(func() error {
			patch := api.GoalProgressPatch{Goals: goals, ActivityName: activity.Name}
			if err := f.backend.PatchGoalProgress(ctx, member, patch); err != nil {
				slog.Error("goal progress patch failed", "member", member, "error", err)
				return err
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return localPath, ErrFanoutPartial
	}
	return localPath, nil
}

// replaceMaterial applies dedup-by-replace: existing materials for the
// same (appointment, slug) are deleted best-effort, then the new PDF is
// uploaded regardless of how the deletes fared.
func (f *Fanout) replaceMaterial(ctx context.Context, patientID, slug, visitDate, filename string, pdf []byte) error {
	existing, err := f.backend.ListMaterials(ctx, patientID, f.appointmentID, slug)
	if err != nil {
		slog.Warn("material lookup failed", "member", patientID, "error", err)
	}
	for _, m := range existing {
		if err := f.backend.DeleteMaterial(ctx, patientID, m.ID); err != nil {
			slog.Warn("stale material delete failed", "member", patientID, "material", m.ID, "error", err)
		}
	}

	_, err = f.backend.UploadMaterial(ctx, patientID, api.UploadMaterialRequest{
		VisitDate:   visitDate,
		Appointment: f.appointmentID,
		Activity:    slug,
		Filename:    filename,
		Content:     pdf,
	})
	return err
}
