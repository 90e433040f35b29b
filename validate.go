package toonshade

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/soypat/toonshade/grid"
)

// Precondition errors returned by CreateShadowThresholdMap. The output
// texture is not modified when one is returned.
var (
	ErrNilOutput          = errors.New("nil output texture")
	ErrNilPosition        = errors.New("nil position texture")
	ErrTooFewSeeds        = errors.New("at least two seed textures required")
	ErrResolutionMismatch = errors.New("texture resolution mismatch")
	ErrUnsupportedFormat  = errors.New("unsupported texture format")
	ErrInvalidRadius      = errors.New("max radius must be at least 1")
)

// validate checks the invocation preconditions in order and returns the
// non-nil seeds and their common resolution.
func validate(log *slog.Logger, seeds []*grid.Texture, position *grid.Texture, maxRadius int, out *grid.Texture) (valid []*grid.Texture, resolution int, err error) {
	if out == nil {
		log.Warn("output texture is not set")
		return nil, 0, ErrNilOutput
	}
	if position == nil {
		log.Warn("position texture is not set")
		return nil, 0, ErrNilPosition
	}
	for _, seed := range seeds {
		if seed != nil {
			valid = append(valid, seed)
		}
	}
	if len(valid) < 2 {
		log.Warn("seed texture count is insufficient", slog.Int("count", len(valid)))
		return nil, 0, fmt.Errorf("%w: got %d", ErrTooFewSeeds, len(valid))
	}
	resolution = valid[0].Size
	var mismatched int
	for _, seed := range valid[1:] {
		if seed.Size != resolution {
			err = sizeMismatch(log, seed, resolution)
			mismatched++
		}
	}
	if mismatched > 1 {
		return nil, 0, fmt.Errorf("%d seed textures mismatched, last: %w", mismatched, err)
	} else if mismatched == 1 {
		return nil, 0, err
	}
	if position.Size != resolution {
		return nil, 0, sizeMismatch(log, position, resolution)
	}
	if out.Size != resolution {
		return nil, 0, sizeMismatch(log, out, resolution)
	}
	if !out.Format.IsThresholdOutput() {
		log.Warn("output texture format is not supported", slog.String("texture", out.Name), slog.String("format", out.Format.String()))
		return nil, 0, fmt.Errorf("%w: output %q is %s", ErrUnsupportedFormat, out.Name, out.Format)
	}
	if maxRadius < 1 {
		log.Warn("max radius is invalid", slog.Int("maxRadius", maxRadius))
		return nil, 0, fmt.Errorf("%w: got %d", ErrInvalidRadius, maxRadius)
	}
	// Inputs are decoded texel by texel, their storage must match their header.
	for _, tex := range append([]*grid.Texture{position, out}, valid...) {
		if !tex.Format.IsValid() || len(tex.Pix) != tex.Size*tex.Size*tex.Format.BytesPerTexel() {
			log.Warn("texture storage does not match its format", slog.String("texture", tex.Name), slog.String("format", tex.Format.String()), slog.Int("bytes", len(tex.Pix)))
			return nil, 0, fmt.Errorf("%w: %q storage is %d bytes for %d %s", ErrUnsupportedFormat, tex.Name, len(tex.Pix), tex.Size, tex.Format)
		}
	}
	return valid, resolution, nil
}

func sizeMismatch(log *slog.Logger, tex *grid.Texture, want int) error {
	log.Warn("texture size mismatch", slog.String("texture", tex.Name), slog.Int("size", tex.Size), slog.Int("want", want))
	return fmt.Errorf("%w: size for %q is %d, but requests %d", ErrResolutionMismatch, tex.Name, tex.Size, want)
}
