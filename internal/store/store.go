package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"media-task-queue/internal/models"
)

// ErrNotFound is returned when no record exists for a job id. Callers
// polling immediately after submission must tolerate a short race between
// enqueue and the first queued write.
var ErrNotFound = errors.New("job record not found")

// RecordStore is the durable key-value view of job state. Implementations
// must make each Put atomic from a reader's point of view: a concurrent Get
// observes either the previous snapshot or the new one, never a torn write.
type RecordStore interface {
	Put(ctx context.Context, rec models.JobRecord) error
	Get(ctx context.Context, jobID string) (models.JobRecord, error)
}

// FileStore keeps one JSON document per job under <root>/jobs. Records are
// the permanent audit trail of a job's life and are never deleted here.
type FileStore struct {
	// root is re-evaluated on every operation so storage relocation takes
	// effect without a restart.
	root func() string
}

// NewFileStore builds a store rooted at the directory returned by root.
func NewFileStore(root func() string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) jobsDir() string {
	return filepath.Join(s.root(), "jobs")
}

func (s *FileStore) recordPath(jobID string) string {
	return filepath.Join(s.jobsDir(), jobID+".json")
}

// Put writes the complete snapshot for rec.JobID. The document is written
// to a temp file in the same directory and renamed into place so readers
// never observe a half-written record.
func (s *FileStore) Put(_ context.Context, rec models.JobRecord) error {
	if rec.JobID == "" {
		return errors.New("job id is required")
	}
	dir := s.jobsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create jobs dir: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, rec.JobID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmpName, s.recordPath(rec.JobID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace record: %w", err)
	}
	return nil
}

// Get returns the current snapshot for jobID, or ErrNotFound.
func (s *FileStore) Get(_ context.Context, jobID string) (models.JobRecord, error) {
	data, err := os.ReadFile(s.recordPath(jobID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.JobRecord{}, ErrNotFound
		}
		return models.JobRecord{}, fmt.Errorf("read record: %w", err)
	}
	var rec models.JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.JobRecord{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}
