package toonshade

// Band is the interval of the [0,1] threshold range assigned to the gradient
// between seed layers Gradient and Gradient+1.
type Band struct {
	Gradient   int
	Start, End float32
}

// Width returns End-Start.
func (b Band) Width() float32 { return b.End - b.Start }

// Bands returns the numLayers-1 bands of numLayers seed layers in ascending
// order. Band edges are computed by division so that the bands tile [0,1]
// exactly: each band's End equals the next band's Start, the first Start is 0
// and the last End is 1. Bands returns nil for fewer than two layers.
func Bands(numLayers int) []Band {
	if numLayers < 2 {
		return nil
	}
	bands := make([]Band, numLayers-1)
	div := float32(numLayers - 1)
	for i := range bands {
		bands[i] = Band{
			Gradient: i,
			Start:    float32(i) / div,
			End:      float32(i+1) / div,
		}
	}
	return bands
}
