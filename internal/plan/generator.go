package plan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Charugundlavipul/soapai-cli/internal/api"
)

// Stage is the generator protocol state.
type Stage int

const (
	StageIdle Stage = iota
	StageDrafting
	StageDrafted
	StagePreviewing
	StagePreviewed
	StageConfirming
	StageConfirmed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageDrafting:
		return "drafting"
	case StageDrafted:
		return "drafted"
	case StagePreviewing:
		return "previewing"
	case StagePreviewed:
		return "previewed"
	case StageConfirming:
		return "confirming"
	case StageConfirmed:
		return "confirmed"
	}
	return "unknown"
}

var (
	// ErrNoMembers blocks drafting with an empty member selection.
	ErrNoMembers = errors.New("select at least one member")
	// ErrNoGoals blocks drafting with an empty goal selection.
	ErrNoGoals = errors.New("select at least one goal")
	// ErrNoMaterials blocks previewing with an empty material selection.
	ErrNoMaterials = errors.New("select at least one material")
	// ErrUnknownMaterial means a selected material is not in the draft's
	// candidate list.
	ErrUnknownMaterial = errors.New("material not proposed by draft")
	// ErrBusy means a generator call is already in flight.
	ErrBusy = errors.New("generator is busy")
	// ErrWrongStage means the operation is not valid from the current stage.
	ErrWrongStage = errors.New("operation not valid in current stage")
)

// Backend is the slice of the practice API the generator and its confirm
// fan-out consume.
type Backend interface {
	DraftActivity(ctx context.Context, appointmentID string, req api.DraftRequest) (*api.DraftResponse, error)
	GenerateActivity(ctx context.Context, appointmentID string, req api.GenerateRequest, idempotencyKey string) (*api.GenerateResponse, error)
	ListMaterials(ctx context.Context, patientID, appointment, activity string) ([]api.Material, error)
	DeleteMaterial(ctx context.Context, patientID, materialID string) error
	UploadMaterial(ctx context.Context, patientID string, req api.UploadMaterialRequest) (*api.Material, error)
	AppendVisit(ctx context.Context, patientID string, visit api.Visit) error
	PatchGoalProgress(ctx context.Context, patientID string, patch api.GoalProgressPatch) error
}

// Generator drives the draft → preview → confirm protocol for one
// appointment. Each appointment holds its own independent instance; the
// pending payload is never shared across generators.
type Generator struct {
	mu      sync.Mutex
	backend Backend

	appointmentID string
	memberIDs     []string
	goals         []string
	duration      string
	idea          string

	stage    Stage
	busy     bool
	draft    *api.DraftResponse
	selected []string

	planMarkdown string
	pending      *api.GenerateRequest
	idemKey      string

	activities []api.Activity
}

// NewGenerator creates an idle Generator for the appointment.
func NewGenerator(backend Backend, appointmentID string) *Generator {
	return &Generator{
		backend:       backend,
		appointmentID: appointmentID,
		stage:         StageIdle,
	}
}

// SetSelection sets the member and goal selection. Valid whenever no call
// is in flight.
func (g *Generator) SetSelection(memberIDs, goals []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return ErrBusy
	}
	g.memberIDs = append([]string(nil), memberIDs...)
	g.goals = append([]string(nil), goals...)
	return nil
}

// SetParameters sets the session duration and optional free-text idea.
func (g *Generator) SetParameters(duration, idea string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return ErrBusy
	}
	g.duration = duration
	g.idea = idea
	return nil
}

// begin flips the stage for an in-flight call after checking the guard.
func (g *Generator) begin(from, during Stage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return ErrBusy
	}
	if g.stage != from {
		return fmt.Errorf("%w: %s from %s", ErrWrongStage, during, g.stage)
	}
	g.busy = true
	g.stage = during
	return nil
}

// finish reverts to the pre-call stage on failure or advances on success.
func (g *Generator) finish(onFailure, onSuccess Stage, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.busy = false
	if err != nil {
		g.stage = onFailure
		return
	}
	g.stage = onSuccess
}

// GenerateDraft runs the first protocol stage. Empty member or goal
// selections are rejected before any network call, leaving the stage at
// idle. Failures revert to idle with the server's message intact.
func (g *Generator) GenerateDraft(ctx context.Context) (*api.DraftResponse, error) {
	g.mu.Lock()
	if g.busy {
		g.mu.Unlock()
		return nil, ErrBusy
	}
	if g.stage != StageIdle {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: draft from %s", ErrWrongStage, g.stage)
	}
	if len(g.memberIDs) == 0 {
		g.mu.Unlock()
		return nil, ErrNoMembers
	}
	if len(g.goals) == 0 {
		g.mu.Unlock()
		return nil, ErrNoGoals
	}
	req := api.DraftRequest{
		MemberIDs: g.memberIDs,
		Goals:     g.goals,
		Duration:  g.duration,
		Idea:      g.idea,
	}
	g.busy = true
	g.stage = StageDrafting
	g.mu.Unlock()

	draft, err := g.backend.DraftActivity(ctx, g.appointmentID, req)
	g.finish(StageIdle, StageDrafted, err)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.draft = draft
	g.selected = nil
	g.mu.Unlock()
	return draft, nil
}

// SelectMaterials narrows the draft's candidate materials. Every selected
// material must be in the draft's list.
func (g *Generator) SelectMaterials(materials []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stage != StageDrafted {
		return fmt.Errorf("%w: select materials from %s", ErrWrongStage, g.stage)
	}
	candidates := make(map[string]bool, len(g.draft.Materials))
	for _, m := range g.draft.Materials {
		candidates[m] = true
	}
	for _, m := range materials {
		if !candidates[m] {
			return fmt.Errorf("%w: %q", ErrUnknownMaterial, m)
		}
	}
	g.selected = append([]string(nil), materials...)
	return nil
}

// Preview runs the non-persisting generation stage. On success the plan
// markdown is returned and an identical payload with the preview flag
// removed is stored for verbatim replay at confirm time; the draft state
// is cleared so it cannot be resubmitted.
func (g *Generator) Preview(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.busy {
		g.mu.Unlock()
		return "", ErrBusy
	}
	if g.stage != StageDrafted {
		g.mu.Unlock()
		return "", fmt.Errorf("%w: preview from %s", ErrWrongStage, g.stage)
	}
	if len(g.selected) == 0 {
		g.mu.Unlock()
		return "", ErrNoMaterials
	}
	req := api.GenerateRequest{
		MemberIDs:    g.memberIDs,
		Goals:        g.goals,
		Duration:     g.duration,
		Idea:         g.idea,
		Materials:    g.selected,
		ActivityName: g.draft.Name,
		Preview:      true,
	}
	g.busy = true
	g.stage = StagePreviewing
	g.mu.Unlock()

	resp, err := g.backend.GenerateActivity(ctx, g.appointmentID, req, "")
	g.finish(StageDrafted, StagePreviewed, err)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.planMarkdown = resp.Plan
	pending := req
	pending.Preview = false
	g.pending = &pending
	g.idemKey = uuid.NewString()
	g.draft = nil
	g.mu.Unlock()
	return resp.Plan, nil
}

// Confirm replays the stored payload without the preview flag, carrying a
// per-payload idempotency key. On success the server-persisted activity
// is appended to the in-memory activity list. This is the point of no
// return: the caller owes the confirmed plan its fan-out.
func (g *Generator) Confirm(ctx context.Context) (*api.Activity, error) {
	if err := g.begin(StagePreviewed, StageConfirming); err != nil {
		return nil, err
	}

	g.mu.Lock()
	req := *g.pending
	key := g.idemKey
	g.mu.Unlock()

	resp, err := g.backend.GenerateActivity(ctx, g.appointmentID, req, key)
	if err == nil && resp.Activity == nil {
		err = fmt.Errorf("confirm response missing activity")
	}
	g.finish(StagePreviewed, StageConfirmed, err)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.activities = append(g.activities, *resp.Activity)
	g.pending = nil
	g.mu.Unlock()
	return resp.Activity, nil
}

// Restart discards drafted/previewed work and returns to idle. The
// member and goal selection is kept; draft, materials, idea, plan text,
// and the pending payload are cleared.
func (g *Generator) Restart() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return ErrBusy
	}
	g.draft = nil
	g.selected = nil
	g.idea = ""
	g.planMarkdown = ""
	g.pending = nil
	g.idemKey = ""
	g.stage = StageIdle
	return nil
}

// Stage returns the current protocol stage.
func (g *Generator) Stage() Stage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stage
}

// Draft returns the current draft proposal, or nil.
func (g *Generator) Draft() *api.DraftResponse {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.draft
}

// Plan returns the previewed plan markdown.
func (g *Generator) Plan() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.planMarkdown
}

// PendingPayload returns a copy of the stored confirm payload, or nil
// before a successful preview / after confirm.
func (g *Generator) PendingPayload() *api.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return nil
	}
	req := *g.pending
	return &req
}

// Members returns the member selection.
func (g *Generator) Members() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.memberIDs...)
}

// Goals returns the goal selection.
func (g *Generator) Goals() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.goals...)
}

// Activities returns the in-memory activity list for this appointment.
func (g *Generator) Activities() []api.Activity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]api.Activity(nil), g.activities...)
}
