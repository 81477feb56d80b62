package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Recording is a captured session blob saved on disk, pending or past
// upload to the backend.
type Recording struct {
	ID          string    `json:"id"`
	Appointment string    `json:"appointment"`
	Path        string    `json:"path"`
	MediaType   string    `json:"media_type"`
	Seconds     int       `json:"seconds"`
	CreatedAt   time.Time `json:"created_at"`
	VideoID     string    `json:"video_id,omitempty"`
}

// Uploaded reports whether the recording has a server-side video resource.
func (r *Recording) Uploaded() bool {
	return r.VideoID != ""
}

// RecordingStore is a JSON-file-backed index of local recordings.
type RecordingStore struct {
	path string
	mu   sync.RWMutex
}

// NewRecordingStore creates a file-backed RecordingStore at the given
// file path.
func NewRecordingStore(path string) *RecordingStore {
	return &RecordingStore{path: path}
}

// List returns all recordings in insertion order. Returns an empty slice
// if the file doesn't exist.
func (s *RecordingStore) List() ([]*Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.load()
	if err != nil {
		return nil, err
	}
	if recs == nil {
		return []*Recording{}, nil
	}
	return recs, nil
}

// Get finds a recording by ID. Returns an error if not found.
func (s *RecordingStore) Get(id string) (*Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("recording not found: %s", id)
}

// Add appends a recording. Returns an error if the ID already exists.
func (s *RecordingStore) Add(rec *Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range recs {
		if existing.ID == rec.ID {
			return fmt.Errorf("recording already exists: %s", rec.ID)
		}
	}
	recs = append(recs, rec)
	return s.save(recs)
}

// Remove deletes a recording entry by ID. The media file itself is left
// to the caller.
func (s *RecordingStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return err
	}
	for i, rec := range recs {
		if rec.ID == id {
			recs = append(recs[:i], recs[i+1:]...)
			return s.save(recs)
		}
	}
	return fmt.Errorf("recording not found: %s", id)
}

// SetVideoID marks a recording as uploaded with its server-assigned
// video resource id.
func (s *RecordingStore) SetVideoID(id, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.ID == id {
			rec.VideoID = videoID
			return s.save(recs)
		}
	}
	return fmt.Errorf("recording not found: %s", id)
}

// load reads the JSON file. Returns nil if the file doesn't exist.
func (s *RecordingStore) load() ([]*Recording, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read recordings file: %w", err)
	}

	var recs []*Recording
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("unmarshal recordings: %w", err)
	}
	return recs, nil
}

// save writes the recording list using atomic write (temp file + rename).
func (s *RecordingStore) save(recs []*Recording) error {
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal recordings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create recordings dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp recordings file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp recordings file: %w", err)
	}
	return nil
}
