package api

// DraftRequest is the body for the first stage of the activity generator.
// Members and goals must be non-empty before any call is issued.
type DraftRequest struct {
	MemberIDs []string `json:"memberIds" validate:"required,min=1"`
	Goals     []string `json:"goals" validate:"required,min=1"`
	Duration  string   `json:"duration" validate:"required,oneof='15 Minutes' '30 Minutes' '45 Minutes' '60 Minutes'"`
	Idea      string   `json:"idea,omitempty"`
}

// DraftResponse is the generator's proposed activity before any plan text exists.
type DraftResponse struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Materials   []string `json:"materials"`
}

// GenerateRequest is the body for both the preview and confirm stages.
// Preview carries `"preview": true`; the confirm replay omits the flag
// entirely so the two bodies differ only by its removal.
type GenerateRequest struct {
	MemberIDs    []string `json:"memberIds" validate:"required,min=1"`
	Goals        []string `json:"goals" validate:"required,min=1"`
	Duration     string   `json:"duration" validate:"required"`
	Idea         string   `json:"idea,omitempty"`
	Materials    []string `json:"materials" validate:"required,min=1"`
	ActivityName string   `json:"activityName" validate:"required"`
	Preview      bool     `json:"preview,omitempty"`
}

// GenerateResponse carries the plan markdown. Activity is set only on
// confirm, once the server has persisted the activity resource.
type GenerateResponse struct {
	Plan     string    `json:"plan"`
	Activity *Activity `json:"activity,omitempty"`
}

// Activity is the server-persisted activity record.
type Activity struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
}

// UpdateActivityRequest is the body for editing a persisted activity.
// Description is markdown.
type UpdateActivityRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Members     []string `json:"members" validate:"required,min=1"`
}

// Material is a stored per-patient file record.
type Material struct {
	ID          string `json:"id"`
	Appointment string `json:"appointment"`
	Activity    string `json:"activity"`
	VisitDate   string `json:"visitDate"`
	Filename    string `json:"filename"`
	URL         string `json:"url,omitempty"`
}

// UploadMaterialRequest is the multipart body for storing a material file.
type UploadMaterialRequest struct {
	VisitDate   string `validate:"required"`
	Appointment string `validate:"required"`
	Activity    string `validate:"required"`
	Filename    string `validate:"required"`
	Content     []byte `validate:"required"`
}

// Visit is a single visit-history record appended to a client.
type Visit struct {
	Date        string   `json:"date" validate:"required"`
	Appointment string   `json:"appointment" validate:"required"`
	SessionType string   `json:"sessionType"`
	Note        string   `json:"note"`
	AIInsights  []string `json:"aiInsights"`
	Activity    string   `json:"activity"`
}

// GoalProgressPatch marks the named goals as advanced by an activity.
type GoalProgressPatch struct {
	Goals        []string `json:"goals" validate:"required,min=1"`
	ActivityName string   `json:"activityName" validate:"required"`
}

// Video is the resource created by a session-recording upload.
type Video struct {
	ID          string `json:"id"`
	Appointment string `json:"appointment"`
	Filename    string `json:"filename"`
	URL         string `json:"url,omitempty"`
}
