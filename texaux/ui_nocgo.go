//go:build tinygo || !cgo

package texaux

import (
	"errors"

	"github.com/soypat/toonshade/grid"
)

func preview(tex *grid.Texture, cfg PreviewConfig) error {
	return errors.New("require cgo for preview window")
}
