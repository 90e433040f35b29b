package grid

import "strconv"

// Format is the pixel format of a [Texture]. Names follow the render target
// formats the pipeline is fed with.
type Format uint8

const (
	FormatUnknown Format = iota
	// FormatR8G8B8A8 stores 4 unsigned normalized 8-bit channels.
	FormatR8G8B8A8
	// FormatFloatRGBA stores 4 half precision (16-bit) float channels.
	FormatFloatRGBA
	// FormatA32B32G32R32F stores 4 single precision float channels in RGBA order.
	FormatA32B32G32R32F
	// FormatR8 stores a single unsigned normalized 8-bit channel.
	FormatR8
	// FormatR32F stores a single float channel.
	FormatR32F
	numFormats
)

// BytesPerTexel returns the size of a single texel in bytes. It returns 0 for
// unknown formats.
func (f Format) BytesPerTexel() int {
	switch f {
	case FormatR8G8B8A8:
		return 4
	case FormatFloatRGBA:
		return 8
	case FormatA32B32G32R32F:
		return 16
	case FormatR8:
		return 1
	case FormatR32F:
		return 4
	}
	return 0
}

// IsValid reports whether f is a known format.
func (f Format) IsValid() bool { return f != FormatUnknown && f < numFormats }

// IsThresholdOutput reports whether a shadow threshold map can be resolved into f.
func (f Format) IsThresholdOutput() bool {
	return f == FormatR8G8B8A8 || f == FormatFloatRGBA || f == FormatA32B32G32R32F
}

func (f Format) String() string {
	switch f {
	case FormatUnknown:
		return "PF_Unknown"
	case FormatR8G8B8A8:
		return "PF_R8G8B8A8"
	case FormatFloatRGBA:
		return "PF_FloatRGBA"
	case FormatA32B32G32R32F:
		return "PF_A32B32G32R32F"
	case FormatR8:
		return "PF_G8"
	case FormatR32F:
		return "PF_R32_FLOAT"
	}
	return "Format(" + strconv.Itoa(int(f)) + ")"
}

// ParseFormat returns the format whose String representation is s.
func ParseFormat(s string) (Format, bool) {
	for f := FormatUnknown + 1; f < numFormats; f++ {
		if f.String() == s {
			return f, true
		}
	}
	return FormatUnknown, false
}
