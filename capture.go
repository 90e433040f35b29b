package toonshade

import (
	"cmp"
	"slices"

	"github.com/soypat/toonshade/grid"
)

// Capture is a painted shading layer: a seed mask together with the layer it
// is assigned to. Lower layers resolve to lower thresholds.
type Capture struct {
	Name  string
	Layer int
	Seed  *grid.Texture
}

// LayerSort sorts captures by ascending Layer. Captures with equal Layer keep
// their relative order. Nil captures are moved to the end.
func LayerSort(captures []*Capture) {
	slices.SortStableFunc(captures, func(a, b *Capture) int {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return 1
		case b == nil:
			return -1
		}
		return cmp.Compare(a.Layer, b.Layer)
	})
}

// SeedTextures returns the seed textures of captures in layer order, ready to
// be passed to CreateShadowThresholdMap. captures is not modified.
func SeedTextures(captures []*Capture) []*grid.Texture {
	sorted := slices.Clone(captures)
	LayerSort(sorted)
	seeds := make([]*grid.Texture, 0, len(sorted))
	for _, c := range sorted {
		if c != nil {
			seeds = append(seeds, c.Seed)
		}
	}
	return seeds
}
