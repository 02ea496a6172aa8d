package manager

import (
	"time"

	"sdserver/internal/diffusion"
)

// Instance is one cached pipeline, keyed by the model reference it was
// requested with.
type Instance struct {
	Ref string
	// Path is the prepared directory the pipeline was loaded from.
	Path     string
	Pipeline diffusion.Pipeline
	LoadedAt time.Time
	LastUsed time.Time
	Uses     uint64
}
