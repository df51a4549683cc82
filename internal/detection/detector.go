package detection

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/JaimeStill/headcount/internal/config"
)

// Detector finds faces in a decoded frame. raw holds the original encoded bytes
// for providers that forward the frame as is.
type Detector interface {
	Detect(ctx context.Context, img image.Image, raw []byte) ([]Observation, error)
	Name() string
	Close() error
}

// New builds the detector selected by cfg.Provider.
func New(ctx context.Context, cfg *config.DetectionConfig, logger *slog.Logger) (Detector, error) {
	logger = logger.With("system", "detection", "provider", cfg.Provider)

	switch cfg.Provider {
	case config.DetectionNone, "":
		return None{}, nil
	case config.DetectionWorker:
		return NewWorkerPool(&cfg.Worker, logger)
	case config.DetectionVision:
		return NewVision(ctx, &cfg.Vision, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// Decode decodes a JPEG, PNG, GIF, BMP or WebP frame.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, format, nil
}

// None reports no faces for every frame.
type None struct{}

func (None) Detect(context.Context, image.Image, []byte) ([]Observation, error) {
	return []Observation{}, nil
}

func (None) Name() string { return config.DetectionNone }

func (None) Close() error { return nil }
