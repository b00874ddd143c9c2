package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"media-task-queue/internal/models"
	"media-task-queue/internal/storage"
)

// thumbnailPayload is the expected payload for type image:thumbnail.
type thumbnailPayload struct {
	Filepath string `json:"filepath"`
	Width    int    `json:"width"`
}

// ThumbnailHandler scales a local image file down to a thumbnail and stores
// it through the artifact provider.
type ThumbnailHandler struct {
	provider storage.Provider
	width    int
}

func NewThumbnailHandler(provider storage.Provider) *ThumbnailHandler {
	return &ThumbnailHandler{provider: provider, width: 300}
}

// Handle processes a single thumbnail job.
func (h *ThumbnailHandler) Handle(ctx context.Context, entry models.QueueEntry) (any, error) {
	payload, err := decodeThumbnailPayload(entry, h.width)
	if err != nil {
		return nil, err
	}

	in, err := os.Open(payload.Filepath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("source image missing: %w", err)
		}
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	src, _, err := image.Decode(in)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if src.Bounds().Dx() == 0 || src.Bounds().Dy() == 0 {
		return nil, errors.New("invalid image dimensions")
	}

	newWidth := payload.Width
	newHeight := int(float64(src.Bounds().Dy()) * float64(newWidth) / float64(src.Bounds().Dx()))
	if newHeight == 0 {
		newHeight = newWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	base := filepath.Base(payload.Filepath)
	tmp, err := os.CreateTemp("", "thumb_*_"+base)
	if err != nil {
		return nil, fmt.Errorf("create temp output: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	switch strings.ToLower(filepath.Ext(base)) {
	case ".png":
		err = png.Encode(tmp, dst)
	default:
		err = jpeg.Encode(tmp, dst, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("encode thumbnail: %w", err)
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
		"message":      "thumbnail completed successfully",
	}, nil
}

func decodeThumbnailPayload(entry models.QueueEntry, defaultWidth int) (thumbnailPayload, error) {
	var payload thumbnailPayload
	raw, err := json.Marshal(entry.Payload)
	if err != nil {
		return payload, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.Filepath == "" {
		return payload, errors.New("filepath is required")
	}
	if payload.Width <= 0 {
		payload.Width = defaultWidth
	}
	return payload, nil
}
