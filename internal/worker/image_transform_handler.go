package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"media-task-queue/internal/config"
	"media-task-queue/internal/models"
	"media-task-queue/internal/storage"
)

// ImageTransformHandler downloads a source image, applies the requested
// transforms, and hands the result to the storage provider. The response
// payload carries the artifact locator and filename.
type ImageTransformHandler struct {
	cfg        config.Config
	httpClient *http.Client
	provider   storage.Provider
}

type imageTransformPayload struct {
	ImageURL     string `json:"image_url"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Grayscale    bool   `json:"grayscale"`
	OutputFormat string `json:"output_format"`
}

func NewImageTransformHandler(cfg config.Config, provider storage.Provider) *ImageTransformHandler {
	timeout := cfg.ImageDownloadTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ImageTransformHandler{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		provider:   provider,
	}
}

// Handle processes a single image:transform job.
func (h *ImageTransformHandler) Handle(ctx context.Context, entry models.QueueEntry) (any, error) {
	payload, err := decodeTransformPayload(entry)
	if err != nil {
		return nil, err
	}

	data, contentType, err := h.download(ctx, payload.ImageURL)
	if err != nil {
		return nil, err
	}

	img, decodedFormat, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if payload.Grayscale {
		img = imaging.Grayscale(img)
	}
	if payload.Width > 0 || payload.Height > 0 {
		img = imaging.Resize(img, payload.Width, payload.Height, imaging.Lanczos)
	}

	format := chooseFormat(payload.OutputFormat, decodedFormat, contentType)

	tmp, err := os.CreateTemp("", entry.JobID+"-*."+formatExtension(format))
	if err != nil {
		return nil, fmt.Errorf("create temp output: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := imaging.Encode(tmp, img, format, imaging.JPEGQuality(85)); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("encode image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp output: %w", err)
	}

	loc, err := h.provider.Store(ctx, tmpName)
	if err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}

	return map[string]any{
		"download_url": loc.URL,
		"filename":     loc.Filename,
		"message":      "image transform completed successfully",
	}, nil
}

func (h *ImageTransformHandler) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("download image: status %d", resp.StatusCode)
	}

	limit := h.cfg.ImageMaxBytes
	if limit == 0 {
		limit = 25 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("image too large (>%d bytes)", limit)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func decodeTransformPayload(entry models.QueueEntry) (imageTransformPayload, error) {
	var payload imageTransformPayload
	raw, err := json.Marshal(entry.Payload)
	if err != nil {
		return payload, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.ImageURL == "" {
		return payload, errors.New("image_url is required")
	}
	return payload, nil
}

func chooseFormat(requested, decodedFormat, contentType string) imaging.Format {
	switch strings.ToLower(strings.TrimPrefix(requested, ".")) {
	case "png":
		return imaging.PNG
	case "jpg", "jpeg":
		return imaging.JPEG
	case "gif":
		return imaging.GIF
	case "tiff":
		return imaging.TIFF
	}
	switch strings.ToLower(decodedFormat) {
	case "png":
		return imaging.PNG
	case "gif":
		return imaging.GIF
	case "tiff":
		return imaging.TIFF
	}
	if strings.Contains(strings.ToLower(contentType), "png") {
		return imaging.PNG
	}
	return imaging.JPEG
}

func formatExtension(format imaging.Format) string {
	switch format {
	case imaging.PNG:
		return "png"
	case imaging.GIF:
		return "gif"
	case imaging.TIFF:
		return "tiff"
	default:
		return "jpg"
	}
}
