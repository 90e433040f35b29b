package parallel

import (
	"sync/atomic"
	"testing"
)

func TestTilesCoverGrid(t *testing.T) {
	for _, tc := range []struct{ res, tile int }{
		{256, 32}, {100, 32}, {31, 32}, {64, 0},
	} {
		tiles := Tiles(tc.res, tc.tile)
		covered := make([]int, tc.res*tc.res)
		for _, tile := range tiles {
			for y := tile.Y0; y < tile.Y1; y++ {
				for x := tile.X0; x < tile.X1; x++ {
					covered[y*tc.res+x]++
				}
			}
		}
		for i, c := range covered {
			if c != 1 {
				t.Fatalf("res=%d tile=%d: texel %d covered %d times", tc.res, tc.tile, i, c)
			}
		}
	}
	if Tiles(0, 32) != nil {
		t.Error("expected no tiles for empty grid")
	}
}

func TestDispatchRunsEveryTile(t *testing.T) {
	p := NewWorkerPool(4)
	defer p.Close()
	if p.Workers() != 4 {
		t.Fatalf("want 4 workers, got %d", p.Workers())
	}
	tiles := Tiles(256, 32)
	var texels atomic.Int64
	for range 3 {
		texels.Store(0)
		p.Dispatch(tiles, func(tile Tile) {
			texels.Add(int64(tile.Texels()))
		})
		if got := texels.Load(); got != 256*256 {
			t.Fatalf("want %d texels processed, got %d", 256*256, got)
		}
	}
}

func TestDispatchClaimsTilesOnce(t *testing.T) {
	for _, workers := range []int{1, 3, 16} {
		p := NewWorkerPool(workers)
		tiles := Tiles(100, 8)
		seen := make([]atomic.Int32, len(tiles))
		index := make(map[Tile]int, len(tiles))
		for i, tile := range tiles {
			index[tile] = i
		}
		p.Dispatch(tiles, func(tile Tile) {
			seen[index[tile]].Add(1)
		})
		p.Close()
		for i := range seen {
			if n := seen[i].Load(); n != 1 {
				t.Fatalf("workers=%d: tile %v ran %d times", workers, tiles[i], n)
			}
		}
		p.Dispatch(nil, func(Tile) { t.Error("kernel called without tiles") })
	}
}

func TestExecuteAfterClose(t *testing.T) {
	p := NewWorkerPool(2)
	p.Close()
	p.Close()
	var ran atomic.Int32
	p.ExecuteAll([]func(){func() { ran.Add(1) }, func() { ran.Add(1) }})
	if ran.Load() != 2 {
		t.Errorf("want work executed inline after close, got %d", ran.Load())
	}
}
