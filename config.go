package gsplat

import (
	_ "embed"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Renderer RendererConfig `yaml:"renderer"`
	Device   DeviceConfig   `yaml:"device"`
	Edit     EditConfig     `yaml:"edit"`
	Logging  LoggingConfig  `yaml:"logging"`
	Bench    BenchConfig    `yaml:"bench"`
}

// RendererConfig holds the per renderer display settings.
type RendererConfig struct {
	SplatScale   float32 `yaml:"splat_scale"`    // 0.1..2
	OpacityScale float32 `yaml:"opacity_scale"`  // 0.05..20
	SHOrder      int     `yaml:"sh_order"`       // 0..3
	SHOnly       bool    `yaml:"sh_only"`        // gray base color, SH bands only
	SortNthFrame int     `yaml:"sort_nth_frame"` // 1..30
	RenderOrder  int     `yaml:"render_order"`
}

type DeviceConfig struct {
	Backend         string `yaml:"backend"` // cpu | wgpu
	Workers         int    `yaml:"workers"` // cpu lanes, 0 = GOMAXPROCS
	PowerPreference string `yaml:"power_preference"`
}

type EditConfig struct {
	MinBoundsExtent         float32 `yaml:"min_bounds_extent"`
	DegenerateVolumeEpsilon float32 `yaml:"degenerate_volume_epsilon"` // on squared extents
}

type LoggingConfig struct {
	Prefix string `yaml:"prefix"`
	Level  string `yaml:"level"` // debug | info | warn | error
}

// BenchConfig drives cmd/splatbench.
type BenchConfig struct {
	Splats int   `yaml:"splats"`
	Frames int   `yaml:"frames"`
	Width  int   `yaml:"width"`
	Height int   `yaml:"height"`
	Stereo bool  `yaml:"stereo"`
	Seed   int64 `yaml:"seed"`
}

const (
	BackendCPU  = "cpu"
	BackendWGPU = "wgpu"
)

// DefaultConfig returns the embedded defaults.
func DefaultConfig() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("gsplat: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func clampf(v, lo, hi float32) float32 { return max(lo, min(hi, v)) }

// normalize clamps ranged values and fills derived defaults.
func (c *Config) normalize() error {
	r := &c.Renderer
	r.SplatScale = clampf(r.SplatScale, 0.1, 2)
	r.OpacityScale = clampf(r.OpacityScale, 0.05, 20)
	r.SHOrder = max(0, min(3, r.SHOrder))
	r.SortNthFrame = max(1, min(30, r.SortNthFrame))

	switch c.Device.Backend {
	case BackendCPU, BackendWGPU:
	case "":
		c.Device.Backend = BackendCPU
	default:
		return fmt.Errorf("unknown device backend %q", c.Device.Backend)
	}
	if c.Device.Workers <= 0 {
		c.Device.Workers = runtime.GOMAXPROCS(0)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = LevelInfo.String()
	}
	level, err := ParseLevel(c.Logging.Level)
	if err != nil {
		return err
	}
	c.Logging.Level = level.String()

	if c.Edit.MinBoundsExtent <= 0 {
		c.Edit.MinBoundsExtent = 0.1
	}
	if c.Edit.DegenerateVolumeEpsilon < 0 {
		c.Edit.DegenerateVolumeEpsilon = 0
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
