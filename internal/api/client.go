package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
)

// Client is the single bearer-authenticated HTTP client shared by every
// workflow that talks to the practice backend. Request payloads are
// validated before any bytes hit the wire.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	validate   *validator.Validate
}

// New creates a Client for the given API base URL (including the /api
// prefix) and bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		validate: validator.New(),
	}
}

// Error is a failed API call. Message is the server-provided message when
// the response body carried one, otherwise a generic description.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed (status %d)", e.Status)
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Message string `json:"message"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

// doJSON issues a JSON request and decodes the response into out (if
// non-nil). A nil body sends an empty request body.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any, header http.Header) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil {
			apiErr.Message = eb.Message
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// DraftActivity runs the first generator stage and returns the proposed
// name, description, and candidate materials.
func (c *Client) DraftActivity(ctx context.Context, appointmentID string, req DraftRequest) (*DraftResponse, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid draft request: %w", err)
	}
	var out DraftResponse
	path := fmt.Sprintf("/appointments/%s/activity-draft", appointmentID)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateActivity runs the preview or confirm generator stage, depending
// on req.Preview. A non-empty idempotencyKey is attached as a header so a
// replayed confirm is deduplicated server-side without altering the body.
func (c *Client) GenerateActivity(ctx context.Context, appointmentID string, req GenerateRequest, idempotencyKey string) (*GenerateResponse, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid generate request: %w", err)
	}
	var header http.Header
	if idempotencyKey != "" {
		header = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}
	var out GenerateResponse
	path := fmt.Sprintf("/appointments/%s/generate-activity", appointmentID)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &out, header); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateActivity edits a persisted activity.
func (c *Client) UpdateActivity(ctx context.Context, appointmentID, activityID string, req UpdateActivityRequest) (*Activity, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid activity update: %w", err)
	}
	var out Activity
	path := fmt.Sprintf("/appointments/%s/activities/%s", appointmentID, activityID)
	if err := c.doJSON(ctx, http.MethodPatch, path, req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteActivity removes a persisted activity.
func (c *Client) DeleteActivity(ctx context.Context, appointmentID, activityID string) error {
	path := fmt.Sprintf("/appointments/%s/activities/%s", appointmentID, activityID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil)
}

// ListMaterials returns the patient's materials matching the appointment
// and activity slug filters. Empty filters are omitted from the query.
func (c *Client) ListMaterials(ctx context.Context, patientID, appointment, activity string) ([]Material, error) {
	q := url.Values{}
	if appointment != "" {
		q.Set("appointment", appointment)
	}
	if activity != "" {
		q.Set("activity", activity)
	}
	path := fmt.Sprintf("/clients/%s/materials", patientID)
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out []Material
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteMaterial removes a stored material file.
func (c *Client) DeleteMaterial(ctx context.Context, patientID, materialID string) error {
	path := fmt.Sprintf("/clients/%s/materials/%s", patientID, materialID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil)
}

// UploadMaterial stores a material file for the patient via multipart POST.
func (c *Client) UploadMaterial(ctx context.Context, patientID string, req UploadMaterialRequest) (*Material, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid material upload: %w", err)
	}

	fields := map[string]string{
		"visitDate":   req.VisitDate,
		"appointment": req.Appointment,
		"activity":    req.Activity,
	}
	body, contentType, err := multipartBody(fields, "file", req.Filename, req.Content)
	if err != nil {
		return nil, err
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("/clients/%s/materials", patientID), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)

	var out Material
	if err := c.send(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AppendVisit appends a visit-history record to the patient.
func (c *Client) AppendVisit(ctx context.Context, patientID string, visit Visit) error {
	if err := c.validate.Struct(visit); err != nil {
		return fmt.Errorf("invalid visit: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/clients/%s/visit", patientID), visit, nil, nil)
}

// PatchGoalProgress records that an activity advanced the patient's goals.
func (c *Client) PatchGoalProgress(ctx context.Context, patientID string, patch GoalProgressPatch) error {
	if err := c.validate.Struct(patch); err != nil {
		return fmt.Errorf("invalid goal progress patch: %w", err)
	}
	return c.doJSON(ctx, http.MethodPatch, fmt.Sprintf("/clients/%s/goal-progress/history", patientID), patch, nil, nil)
}

// UploadVideo uploads a recorded session as multipart POST and returns the
// created video resource.
func (c *Client) UploadVideo(ctx context.Context, appointmentID, filename string, content []byte) (*Video, error) {
	fields := map[string]string{
		"appointment": appointmentID,
	}
	body, contentType, err := multipartBody(fields, "file", filename, content)
	if err != nil {
		return nil, err
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/videos", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)

	var out Video
	if err := c.send(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// multipartBody builds a multipart form with the given string fields and a
// single file part.
func multipartBody(fields map[string]string, fileField, filename string, content []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile(fileField, filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finish multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
