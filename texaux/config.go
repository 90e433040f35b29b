package texaux

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	math "github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"

	"github.com/soypat/toonshade/grid"
)

// RunConfig describes a shadow threshold map invocation and where to read
// its inputs from. It is stored as TOML.
type RunConfig struct {
	// Resolution of generated inputs. Ignored when every input is loaded from file.
	Resolution int
	MaxRadius  int
	// Format is the output pixel format name, i.e: "PF_R8G8B8A8".
	Format string
	// Output is the PNG file the threshold map is written to.
	Output string
	// Position is a PNG file with model-space positions. If empty the
	// surface named by Surface is generated.
	Position string
	// Surface is "plane" or "cylinder".
	Surface string
	UseGPU  bool
	// Workers and TileSize configure the CPU device.
	Workers  int
	TileSize int
	Seeds    []SeedConfig `toml:"seed"`
}

// SeedConfig is one seed mask, loaded from Image or painted from shapes.
type SeedConfig struct {
	Name  string
	Layer int
	Image string
	// Circles holds [x, y, radius] triplets in texels.
	Circles [][3]float32
	// Polygons holds closed polygons as [x, y] vertices in texels.
	Polygons [][][2]float32
}

// DefaultRunConfig returns a three layer configuration painted on a plane.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Resolution: 256,
		MaxRadius:  64,
		Format:     grid.FormatR8G8B8A8.String(),
		Output:     "threshold.png",
		Surface:    "plane",
		Seeds: []SeedConfig{
			{Name: "shadow", Layer: 0, Circles: [][3]float32{{64, 64, 40}}},
			{Name: "midtone", Layer: 1, Polygons: [][][2]float32{{{96, 160}, {200, 110}, {230, 230}}}},
			{Name: "light", Layer: 2, Circles: [][3]float32{{200, 40, 24}, {40, 220, 20}}},
		},
	}
}

// DecodeRunConfig decodes a TOML run configuration. Keys that do not map to
// a RunConfig field are an error.
func DecodeRunConfig(r io.Reader) (RunConfig, error) {
	cfg := RunConfig{Surface: "plane"}
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return cfg, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("unknown configuration keys: %s", strings.Join(keys, ", "))
	}
	return cfg, cfg.Validate()
}

// LoadRunConfig reads a TOML run configuration file. Relative paths of
// images in the file are resolved against the file's directory.
func LoadRunConfig(filename string) (RunConfig, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return RunConfig{}, err
	}
	defer fp.Close()
	cfg, err := DecodeRunConfig(fp)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", filename, err)
	}
	dir := filepath.Dir(filename)
	resolve := func(path *string) {
		if *path != "" && !filepath.IsAbs(*path) {
			*path = filepath.Join(dir, *path)
		}
	}
	resolve(&cfg.Position)
	for i := range cfg.Seeds {
		resolve(&cfg.Seeds[i].Image)
	}
	return cfg, nil
}

// WriteRunConfig encodes cfg as TOML.
func WriteRunConfig(w io.Writer, cfg RunConfig) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// Validate checks the configuration fields are usable.
func (cfg RunConfig) Validate() error {
	if _, ok := grid.ParseFormat(cfg.Format); !ok {
		return fmt.Errorf("unknown output format %q", cfg.Format)
	}
	if cfg.MaxRadius < 1 {
		return errors.New("max radius must be at least 1")
	}
	if cfg.Position == "" {
		if cfg.Resolution <= 0 {
			return errors.New("resolution must be positive to generate positions")
		}
		if cfg.Surface != "plane" && cfg.Surface != "cylinder" {
			return fmt.Errorf("unknown surface %q", cfg.Surface)
		}
	}
	for i, seed := range cfg.Seeds {
		if seed.Image == "" && len(seed.Circles) == 0 && len(seed.Polygons) == 0 {
			return fmt.Errorf("seed %d (%q) has no image nor shapes", i, seed.Name)
		}
	}
	return nil
}

// OutputFormat returns the parsed output format.
func (cfg RunConfig) OutputFormat() grid.Format {
	f, _ := grid.ParseFormat(cfg.Format)
	return f
}

// LoadPosition loads or generates the position texture.
func (cfg RunConfig) LoadPosition() (*grid.Texture, error) {
	if cfg.Position != "" {
		return LoadPNG(cfg.Position, grid.FormatA32B32G32R32F)
	}
	size := float32(cfg.Resolution)
	f := Plane(ms2.Box{Max: ms2.Vec{X: size, Y: size}})
	if cfg.Surface == "cylinder" {
		// One texel of circumference per texel keeps distances in texel units.
		f = Cylinder(size/(2*math.Pi), size)
	}
	return NewPositionTexture("position", cfg.Resolution, f)
}

// LoadSeeds loads or paints every seed mask at the given resolution and
// returns them with their layers in the order of the configuration file.
func (cfg RunConfig) LoadSeeds(resolution int) ([]*grid.Texture, []int, error) {
	seeds := make([]*grid.Texture, len(cfg.Seeds))
	layers := make([]int, len(cfg.Seeds))
	for i, sc := range cfg.Seeds {
		tex, err := sc.Load(resolution)
		if err != nil {
			return nil, nil, err
		}
		seeds[i] = tex
		layers[i] = sc.Layer
	}
	return seeds, layers, nil
}

// Load loads the seed image or paints its shapes into a new mask.
func (sc SeedConfig) Load(resolution int) (*grid.Texture, error) {
	name := sc.Name
	if name == "" {
		name = sc.Image
	}
	if sc.Image != "" {
		tex, err := LoadPNG(sc.Image, grid.FormatR8)
		if err != nil {
			return nil, err
		}
		tex.Name = name
		return tex, nil
	}
	tex, err := NewSeed(name, resolution)
	if err != nil {
		return nil, err
	}
	p := NewPainter(tex)
	for _, c := range sc.Circles {
		err = p.Circle(ms2.Vec{X: c[0], Y: c[1]}, c[2])
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", name, err)
		}
	}
	for _, poly := range sc.Polygons {
		vertices := make([]ms2.Vec, len(poly))
		for i, v := range poly {
			vertices[i] = ms2.Vec{X: v[0], Y: v[1]}
		}
		err = p.Polygon(vertices)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", name, err)
		}
	}
	return tex, nil
}
