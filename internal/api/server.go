package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"media-task-queue/internal/config"
	"media-task-queue/internal/models"
	"media-task-queue/internal/queue"
	"media-task-queue/internal/status"
	"media-task-queue/internal/storage"
	"media-task-queue/internal/store"
	"media-task-queue/internal/telemetry"
)

// Server wires the HTTP intake and read paths. Intake only ever writes the
// queued record and enqueues; execution belongs to the worker pool.
type Server struct {
	cfg     config.Config
	store   store.RecordStore
	queue   queue.Queue
	status  *status.Service
	queueID string
}

// New constructs the API server. queueID must match the id the worker pool
// writes so records stay attributable to one service instance.
func New(cfg config.Config, st store.RecordStore, q queue.Queue, statusSvc *status.Service, queueID string) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		queue:   q,
		status:  statusSvc,
		queueID: queueID,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(s.requireAPIKey)
		}
		r.Post("/v1/jobs", s.handleSubmit)
		r.Post("/v1/image/transform", s.handleImageTransform)
		r.Get("/v1/jobs/{id}", s.handleStatus)
		r.Get("/v1/storage/download/{filename}", s.handleDownload)
		r.Get("/v1/storage/list", s.handleList)
	})
	return r
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != s.cfg.APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type submitRequest struct {
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload"`
	WebhookURL string         `json:"webhook_url"`
	ID         string         `json:"id"`
}

type submitResponse struct {
	Code        int    `json:"code"`
	ID          string `json:"id,omitempty"`
	JobID       string `json:"job_id"`
	Message     string `json:"message"`
	PID         int    `json:"pid"`
	QueueID     string `json:"queue_id"`
	QueueLength int    `json:"queue_length"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type is required"})
		return
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}
	s.submit(w, r, req.Type, req.Payload, req.WebhookURL, req.ID)
}

type imageTransformRequest struct {
	ImageURL     string `json:"image_url"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Grayscale    bool   `json:"grayscale"`
	OutputFormat string `json:"output_format"`
	WebhookURL   string `json:"webhook_url"`
	ID           string `json:"id"`
}

func (s *Server) handleImageTransform(w http.ResponseWriter, r *http.Request) {
	var req imageTransformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ImageURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image_url is required"})
		return
	}
	payload := map[string]any{
		"image_url":     req.ImageURL,
		"width":         req.Width,
		"height":        req.Height,
		"grayscale":     req.Grayscale,
		"output_format": req.OutputFormat,
	}
	s.submit(w, r, "image:transform", payload, req.WebhookURL, req.ID)
}

// submit assigns a job id, persists the queued snapshot, and links the
// entry into the queue. The queue never rejects, so the answer is always
// an acceptance.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, jobType string, payload map[string]any, webhookURL, echoID string) {
	jobID := uuid.NewString()

	rec := models.JobRecord{
		JobID:      jobID,
		JobStatus:  models.StatusQueued,
		QueueID:    s.queueID,
		EchoID:     echoID,
		WebhookURL: webhookURL,
	}
	if err := s.store.Put(r.Context(), rec); err != nil {
		telemetry.RecordWriteFailures.Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to persist job record"})
		return
	}

	entry := models.QueueEntry{
		JobID:      jobID,
		Type:       jobType,
		Payload:    payload,
		WebhookURL: webhookURL,
		EchoID:     echoID,
		EnqueuedAt: time.Now(),
	}
	if err := s.queue.Enqueue(r.Context(), entry); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "enqueue failed"})
		return
	}
	telemetry.JobsEnqueued.Inc()

	// The length is a hint; concurrent dequeues may change it immediately.
	length, _ := s.queue.Size(r.Context())
	telemetry.QueueDepthGauge.Set(float64(length))

	writeJSON(w, http.StatusAccepted, submitResponse{
		Code:        http.StatusAccepted,
		ID:          echoID,
		JobID:       jobID,
		Message:     "Job queued successfully",
		PID:         os.Getpid(),
		QueueID:     s.queueID,
		QueueLength: length,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.status.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Job not found", "job_id": id})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to retrieve job status"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "filename")
	name, err := url.PathUnescape(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid filename"})
		return
	}
	name = path.Clean(name)
	if name == "." || strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid file path"})
		return
	}

	full := filepath.Join(storage.ResolveRoot(s.cfg), filepath.FromSlash(name))
	info, err := os.Stat(full)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})
		return
	}
	if info.IsDir() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid file path"})
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(name)+`"`)
	http.ServeFile(w, r, full)
}

type fileInfo struct {
	Filename    string  `json:"filename"`
	Size        int64   `json:"size"`
	MimeType    string  `json:"mime_type"`
	Modified    float64 `json:"modified"`
	DownloadURL string  `json:"download_url"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	root := storage.ResolveRoot(s.cfg)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, map[string]any{"files": []fileInfo{}, "storage_path": root, "total_files": 0})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list files"})
		return
	}

	files := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		mimeType := mime.TypeByExtension(filepath.Ext(e.Name()))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		files = append(files, fileInfo{
			Filename:    e.Name(),
			Size:        info.Size(),
			MimeType:    mimeType,
			Modified:    float64(info.ModTime().UnixMilli()) / 1000,
			DownloadURL: "/v1/storage/download/" + e.Name(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Modified > files[j].Modified })

	writeJSON(w, http.StatusOK, map[string]any{
		"files":        files,
		"storage_path": root,
		"total_files":  len(files),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
