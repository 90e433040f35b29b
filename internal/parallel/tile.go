package parallel

// DefaultTileSize matches the 32x32 compute thread group of the GPU kernels.
const DefaultTileSize = 32

// Tile is a half-open rectangle [X0,X1)x[Y0,Y1) of texels.
type Tile struct {
	X0, Y0 int
	X1, Y1 int
}

// Texels returns the amount of texels covered by the tile.
func (t Tile) Texels() int { return (t.X1 - t.X0) * (t.Y1 - t.Y0) }

// Tiles partitions a resolution*resolution grid into tiles of tileSize.
// Edge tiles are clipped when resolution is not a multiple of tileSize.
func Tiles(resolution, tileSize int) []Tile {
	if resolution <= 0 {
		return nil
	}
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	groups := GroupCount(resolution, tileSize)
	tiles := make([]Tile, 0, groups*groups)
	for gy := 0; gy < groups; gy++ {
		for gx := 0; gx < groups; gx++ {
			tiles = append(tiles, Tile{
				X0: gx * tileSize,
				Y0: gy * tileSize,
				X1: min((gx+1)*tileSize, resolution),
				Y1: min((gy+1)*tileSize, resolution),
			})
		}
	}
	return tiles
}

// GroupCount returns the amount of tiles along one axis.
func GroupCount(resolution, tileSize int) int {
	return (resolution + tileSize - 1) / tileSize
}
