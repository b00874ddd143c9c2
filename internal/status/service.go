package status

import (
	"context"

	"media-task-queue/internal/models"
	"media-task-queue/internal/store"
)

// maxUnwrapDepth bounds the nested-response traversal. A record's response
// may wrap an earlier response, but never meaningfully deeper than this.
const maxUnwrapDepth = 10

// Service is the read path for job state. It normalizes done records by
// surfacing the artifact filename and a download URL at the top level.
type Service struct {
	store   store.RecordStore
	baseURL string
}

func New(st store.RecordStore, baseURL string) *Service {
	return &Service{store: st, baseURL: baseURL}
}

// Document is the JobRecord plus the download fields added for done jobs
// whose response carries a filename.
type Document struct {
	models.JobRecord
	Filename    string `json:"filename,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// Get returns the normalized status document for jobID, or
// store.ErrNotFound for unknown ids. A done record without a discoverable
// filename is returned as-is; that is not an error.
func (s *Service) Get(ctx context.Context, jobID string) (Document, error) {
	rec, err := s.store.Get(ctx, jobID)
	if err != nil {
		return Document{}, err
	}

	doc := Document{JobRecord: rec}
	if rec.JobStatus == models.StatusDone {
		if name, ok := findFilename(rec.Response); ok {
			doc.Filename = name
			doc.DownloadURL = s.baseURL + "/v1/storage/download/" + name
		}
	}
	return doc, nil
}

// findFilename checks the top level of the response first, then unwraps
// nested response maps until one without further nesting is reached, and
// checks that level.
func findFilename(response any) (string, bool) {
	current, ok := asMap(response)
	if !ok {
		return "", false
	}
	if name := stringField(current, "filename"); name != "" {
		return name, true
	}
	for depth := 0; depth < maxUnwrapDepth; depth++ {
		next, ok := asMap(current["response"])
		if !ok {
			break
		}
		current = next
	}
	if name := stringField(current, "filename"); name != "" {
		return name, true
	}
	return "", false
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
