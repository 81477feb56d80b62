package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Charugundlavipul/soapai-cli/internal/api"
)

// fakeBackend records every call and serves canned generator responses.
type fakeBackend struct {
	mu sync.Mutex

	draftResp *api.DraftResponse
	draftErr  error
	genErr    error
	plan      string
	activity  *api.Activity

	draftCalls   int
	genRequests  []api.GenerateRequest
	genKeys      []string
	materials    map[string][]api.Material // patientID -> existing
	calls        []string                  // sequenced call log, "op:patient"
	uploadErrFor string
	visitErrFor  string

	blockGen chan struct{} // when set, GenerateActivity waits on it
}

func (f *fakeBackend) log(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeBackend) DraftActivity(_ context.Context, _ string, req api.DraftRequest) (*api.DraftResponse, error) {
	f.mu.Lock()
	f.draftCalls++
	f.mu.Unlock()
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	return f.draftResp, nil
}

func (f *fakeBackend) GenerateActivity(_ context.Context, _ string, req api.GenerateRequest, key string) (*api.GenerateResponse, error) {
	if f.blockGen != nil {
		<-f.blockGen
	}
	f.mu.Lock()
	f.genRequests = append(f.genRequests, req)
	f.genKeys = append(f.genKeys, key)
	f.mu.Unlock()
	if f.genErr != nil {
		return nil, f.genErr
	}
	resp := &api.GenerateResponse{Plan: f.plan}
	if !req.Preview {
		resp.Activity = f.activity
	}
	return resp, nil
}

func (f *fakeBackend) ListMaterials(_ context.Context, patientID, _, _ string) ([]api.Material, error) {
	f.log("list:%s", patientID)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.materials[patientID], nil
}

func (f *fakeBackend) DeleteMaterial(_ context.Context, patientID, materialID string) error {
	f.log("delete:%s:%s", patientID, materialID)
	return nil
}

func (f *fakeBackend) UploadMaterial(_ context.Context, patientID string, _ api.UploadMaterialRequest) (*api.Material, error) {
	f.log("upload:%s", patientID)
	if patientID == f.uploadErrFor {
		return nil, errors.New("storage unavailable")
	}
	return &api.Material{ID: "m-" + patientID}, nil
}

func (f *fakeBackend) AppendVisit(_ context.Context, patientID string, _ api.Visit) error {
	f.log("visit:%s", patientID)
	if patientID == f.visitErrFor {
		return errors.New("visit rejected")
	}
	return nil
}

func (f *fakeBackend) PatchGoalProgress(_ context.Context, patientID string, _ api.GoalProgressPatch) error {
	f.log("goals:%s", patientID)
	return nil
}

func (f *fakeBackend) countCalls(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func draftedGenerator(t *testing.T, backend *fakeBackend) *Generator {
	t.Helper()
	gen := NewGenerator(backend, "appt7")
	if err := gen.SetSelection([]string{"p1"}, []string{"Articulation"}); err != nil {
		t.Fatal(err)
	}
	if err := gen.SetParameters("30 Minutes", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := gen.GenerateDraft(context.Background()); err != nil {
		t.Fatalf("draft: %v", err)
	}
	return gen
}

func TestDraftValidationBlocksNetworkCall(t *testing.T) {
	backend := &fakeBackend{}
	gen := NewGenerator(backend, "appt7")

	// Empty members.
	_ = gen.SetSelection(nil, []string{"Articulation"})
	if _, err := gen.GenerateDraft(context.Background()); !errors.Is(err, ErrNoMembers) {
		t.Errorf("expected ErrNoMembers, got %v", err)
	}

	// Empty goals.
	_ = gen.SetSelection([]string{"p1"}, nil)
	if _, err := gen.GenerateDraft(context.Background()); !errors.Is(err, ErrNoGoals) {
		t.Errorf("expected ErrNoGoals, got %v", err)
	}

	if backend.draftCalls != 0 {
		t.Errorf("validation failure must not issue a network call, got %d", backend.draftCalls)
	}
	if gen.Stage() != StageIdle {
		t.Errorf("stage moved to %s", gen.Stage())
	}
}

func TestDraftFailureRevertsToIdle(t *testing.T) {
	backend := &fakeBackend{draftErr: errors.New("generator overloaded")}
	gen := NewGenerator(backend, "appt7")
	_ = gen.SetSelection([]string{"p1"}, []string{"Articulation"})
	_ = gen.SetParameters("30 Minutes", "")

	_, err := gen.GenerateDraft(context.Background())
	if err == nil || !strings.Contains(err.Error(), "generator overloaded") {
		t.Errorf("server message not surfaced verbatim: %v", err)
	}
	if gen.Stage() != StageIdle {
		t.Errorf("expected idle after failure, got %s", gen.Stage())
	}
}

func TestHappyPathDraftPreview(t *testing.T) {
	backend := &fakeBackend{
		draftResp: &api.DraftResponse{
			Name:      "Flashcard Game",
			Materials: []string{"Cards", "Timer"},
		},
		plan: "## Flashcard Game\n\n1. Deal the cards.",
	}
	gen := draftedGenerator(t, backend)

	if gen.Stage() != StageDrafted {
		t.Fatalf("expected drafted, got %s", gen.Stage())
	}
	if err := gen.SelectMaterials([]string{"Cards", "Timer"}); err != nil {
		t.Fatalf("select materials: %v", err)
	}

	planText, err := gen.Preview(context.Background())
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if planText != backend.plan {
		t.Errorf("unexpected plan text %q", planText)
	}
	if gen.Stage() != StagePreviewed {
		t.Errorf("expected previewed, got %s", gen.Stage())
	}

	pending := gen.PendingPayload()
	if pending == nil {
		t.Fatal("expected a pending payload")
	}
	if pending.Preview {
		t.Error("pending payload must omit the preview flag")
	}
	if len(pending.Materials) != 2 || pending.Materials[0] != "Cards" || pending.Materials[1] != "Timer" {
		t.Errorf("unexpected pending materials %v", pending.Materials)
	}
	if pending.ActivityName != "Flashcard Game" {
		t.Errorf("unexpected activity name %q", pending.ActivityName)
	}

	// The draft is cleared so it cannot be resubmitted.
	if gen.Draft() != nil {
		t.Error("draft state not cleared after preview")
	}
}

func TestPreviewRequiresMaterials(t *testing.T) {
	backend := &fakeBackend{
		draftResp: &api.DraftResponse{Name: "Story Time", Materials: []string{"Book"}},
	}
	gen := draftedGenerator(t, backend)

	if _, err := gen.Preview(context.Background()); !errors.Is(err, ErrNoMaterials) {
		t.Errorf("expected ErrNoMaterials, got %v", err)
	}
	if len(backend.genRequests) != 0 {
		t.Error("validation failure must not issue a network call")
	}
	if gen.Stage() != StageDrafted {
		t.Errorf("stage moved to %s", gen.Stage())
	}
}

func TestSelectMaterialsMustBeProposed(t *testing.T) {
	backend := &fakeBackend{
		draftResp: &api.DraftResponse{Name: "Story Time", Materials: []string{"Book"}},
	}
	gen := draftedGenerator(t, backend)

	if err := gen.SelectMaterials([]string{"Book", "Dice"}); !errors.Is(err, ErrUnknownMaterial) {
		t.Errorf("expected ErrUnknownMaterial, got %v", err)
	}
}

func TestConfirmReplaysPendingPayload(t *testing.T) {
	backend := &fakeBackend{
		draftResp: &api.DraftResponse{Name: "Flashcard Game", Materials: []string{"Cards", "Timer"}},
		plan:      "plan",
		activity:  &api.Activity{ID: "act1", Name: "Flashcard Game", Members: []string{"p1"}},
	}
	gen := draftedGenerator(t, backend)
	_ = gen.SelectMaterials([]string{"Cards"})
	if _, err := gen.Preview(context.Background()); err != nil {
		t.Fatalf("preview: %v", err)
	}

	activity, err := gen.Confirm(context.Background())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if activity.ID != "act1" {
		t.Errorf("unexpected activity %+v", activity)
	}
	if gen.Stage() != StageConfirmed {
		t.Errorf("expected confirmed, got %s", gen.Stage())
	}

	if len(backend.genRequests) != 2 {
		t.Fatalf("expected preview + confirm calls, got %d", len(backend.genRequests))
	}
	previewReq, confirmReq := backend.genRequests[0], backend.genRequests[1]
	if !previewReq.Preview || confirmReq.Preview {
		t.Error("preview flag mishandled")
	}
	previewReq.Preview = false
	if fmt.Sprintf("%+v", previewReq) != fmt.Sprintf("%+v", confirmReq) {
		t.Errorf("confirm payload diverged from preview:\n%+v\n%+v", previewReq, confirmReq)
	}

	// The preview call carries no idempotency key; the confirm does.
	if backend.genKeys[0] != "" {
		t.Error("preview should not carry an idempotency key")
	}
	if backend.genKeys[1] == "" {
		t.Error("confirm should carry an idempotency key")
	}

	if got := gen.Activities(); len(got) != 1 || got[0].ID != "act1" {
		t.Errorf("activity not appended to in-memory list: %+v", got)
	}
	if gen.PendingPayload() != nil {
		t.Error("pending payload not cleared after confirm")
	}
}

func TestConfirmBusyGuard(t *testing.T) {
	backend := &fakeBackend{
		draftResp: &api.DraftResponse{Name: "Game", Materials: []string{"Cards"}},
		plan:      "plan",
		activity:  &api.Activity{ID: "act1", Members: []string{"p1"}},
	}
	gen := draftedGenerator(t, backend)
	_ = gen.SelectMaterials([]string{"Cards"})
	if _, err := gen.Preview(context.Background()); err != nil {
		t.Fatalf("preview: %v", err)
	}

	backend.blockGen = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := gen.Confirm(context.Background())
		done <- err
	}()

	// Wait until the first confirm is in flight.
	for gen.Stage() != StageConfirming {
		time.Sleep(time.Millisecond)
	}

	if _, err := gen.Confirm(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy for re-entrant confirm, got %v", err)
	}

	close(backend.blockGen)
	if err := <-done; err != nil {
		t.Fatalf("first confirm: %v", err)
	}
}

func TestRestartAllowsAnotherRound(t *testing.T) {
	backend := &fakeBackend{
		draftResp: &api.DraftResponse{Name: "Game", Materials: []string{"Cards"}},
		plan:      "plan",
		activity:  &api.Activity{ID: "act2", Members: []string{"p1"}},
	}
	gen := draftedGenerator(t, backend)
	_ = gen.SelectMaterials([]string{"Cards"})
	if _, err := gen.Preview(context.Background()); err != nil {
		t.Fatalf("preview: %v", err)
	}

	if err := gen.Restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}

	// A full second round must run against the retained selection.
	if _, err := gen.GenerateDraft(context.Background()); err != nil {
		t.Fatalf("draft after restart: %v", err)
	}
	if err := gen.SelectMaterials([]string{"Cards"}); err != nil {
		t.Fatalf("select after restart: %v", err)
	}
	if _, err := gen.Preview(context.Background()); err != nil {
		t.Fatalf("preview after restart: %v", err)
	}
	if _, err := gen.Confirm(context.Background()); err != nil {
		t.Fatalf("confirm after restart: %v", err)
	}
	if gen.Stage() != StageConfirmed {
		t.Errorf("expected confirmed, got %s", gen.Stage())
	}
	if backend.draftCalls != 2 {
		t.Errorf("expected a fresh draft call per round, got %d", backend.draftCalls)
	}
}

func TestRestartKeepsSelection(t *testing.T) {
	backend := &fakeBackend{
		draftResp: &api.DraftResponse{Name: "Game", Materials: []string{"Cards"}},
		plan:      "plan",
	}
	gen := draftedGenerator(t, backend)
	_ = gen.SetParameters("30 Minutes", "card based")
	_ = gen.SelectMaterials([]string{"Cards"})
	if _, err := gen.Preview(context.Background()); err != nil {
		t.Fatalf("preview: %v", err)
	}

	if err := gen.Restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if gen.Stage() != StageIdle {
		t.Errorf("expected idle, got %s", gen.Stage())
	}
	if gen.Draft() != nil || gen.PendingPayload() != nil || gen.Plan() != "" {
		t.Error("restart did not clear generation state")
	}
	if members := gen.Members(); len(members) != 1 || members[0] != "p1" {
		t.Errorf("member selection lost on restart: %v", members)
	}
	if goals := gen.Goals(); len(goals) != 1 || goals[0] != "Articulation" {
		t.Errorf("goal selection lost on restart: %v", goals)
	}
}
