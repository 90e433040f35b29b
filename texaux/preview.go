package texaux

import (
	"context"
	"errors"

	"github.com/soypat/toonshade/grid"
)

// PreviewConfig configures the threshold map preview window.
type PreviewConfig struct {
	Width, Height int
	// Sweep animates the light intensity from 0 to 1 and back. Arrow keys
	// set the intensity manually, space toggles showing raw thresholds.
	Sweep bool
	// Context cancels the preview when done.
	Context context.Context
}

// Preview opens a window that lights tex as a toon shader would. It blocks
// until the window is closed. Requires CGo and must be called from the main
// goroutine with the OS thread locked.
func Preview(tex *grid.Texture, cfg PreviewConfig) error {
	if tex == nil {
		return errors.New("nil texture")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 800, 800
	}
	return preview(tex, cfg)
}
