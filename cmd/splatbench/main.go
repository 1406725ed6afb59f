// Command splatbench renders a synthetic splat scene headless for a number
// of frames and reports per frame sort and view timings.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/stat"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/gpu"
	"github.com/gekko3d/gsplat/splatrt/rt/splat"
)

// FrameRecord is one CSV row.
type FrameRecord struct {
	Frame     int     `csv:"frame"`
	SortMs    float64 `csv:"sort_ms"`
	ViewMs    float64 `csv:"view_ms"`
	TotalMs   float64 `csv:"total_ms"`
	Splats    int     `csv:"splats"`
	DrawCalls int     `csv:"draw_calls"`
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }

func main() {
	configPath := flag.String("config", "", "Config YAML file (empty = use defaults)")
	splats := flag.Int("splats", 0, "Number of synthetic splats (0 = config)")
	frames := flag.Int("frames", 0, "Number of frames (0 = config)")
	stereo := flag.Bool("stereo", false, "Render two eyes")
	backend := flag.String("backend", "", "Device backend: cpu or wgpu (empty = config)")
	quantize := flag.Bool("quantize", false, "Use the chunk quantized medium format")
	csvPath := flag.String("csv", "", "Write per frame timings to this CSV file")
	flag.Parse()

	cfg, err := gsplat.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *splats > 0 {
		cfg.Bench.Splats = *splats
	}
	if *frames > 0 {
		cfg.Bench.Frames = *frames
	}
	if *stereo {
		cfg.Bench.Stereo = true
	}
	if *backend != "" {
		cfg.Device.Backend = *backend
	}
	logger := gsplat.NewLogger(cfg.Logging)

	dev, err := gpu.NewDevice(cfg.Device, logger)
	if err != nil {
		log.Fatalf("failed to open device: %v", err)
	}
	defer dev.Release()

	format := core.VeryHigh
	if *quantize {
		format = core.Format{Pos: core.VectorNorm11, Scale: core.VectorNorm11, SH: core.SHNorm6, Color: core.ColorNorm8x4}
	}
	rng := rand.New(rand.NewSource(cfg.Bench.Seed))
	buildStart := time.Now()
	asset, err := core.BuildAsset("bench", core.SyntheticSplats(cfg.Bench.Splats, 10, rng), format)
	if err != nil {
		log.Fatalf("failed to build asset: %v", err)
	}
	logger.Infof("built %d splats in %s", asset.SplatCount, time.Since(buildStart).Round(time.Millisecond))

	r := splat.NewRenderer(dev, cfg, logger)
	r.SetAsset(asset)
	if !r.HasValidRenderSetup() {
		log.Fatalf("renderer setup failed on %s", dev.Name())
	}
	system := splat.NewSystem(logger)
	system.Register(r)
	defer system.Release()

	fly := core.NewFlyCamera()
	records := make([]FrameRecord, 0, cfg.Bench.Frames)
	for f := 0; f < cfg.Bench.Frames; f++ {
		// orbit the origin once over the run, always facing it
		theta := 2 * math.Pi * float64(f) / float64(max(cfg.Bench.Frames, 1))
		fly.Position = mgl32.Vec3{float32(20 * math.Sin(theta)), 2, float32(20 * math.Cos(theta))}
		fly.Yaw = float32(-theta)
		cam := fly.Camera(cfg.Bench.Width, cfg.Bench.Height, cfg.Bench.Stereo)

		start := time.Now()
		calls, err := system.Render(cam)
		total := time.Since(start)
		if err != nil {
			log.Fatalf("frame %d: %v", f, err)
		}
		p := system.Profiler
		records = append(records, FrameRecord{
			Frame:     f,
			SortMs:    ms(p.Scopes[splat.ScopeSort]),
			ViewMs:    ms(p.Scopes[splat.ScopeView]),
			TotalMs:   ms(total),
			Splats:    p.Counts[splat.CountSplats],
			DrawCalls: len(calls),
		})
	}

	if *csvPath != "" {
		out, err := os.Create(*csvPath)
		if err != nil {
			log.Fatalf("failed to create csv: %v", err)
		}
		if err := gocsv.MarshalFile(&records, out); err != nil {
			out.Close()
			log.Fatalf("writing csv: %v", err)
		}
		out.Close()
	}

	printSummary(dev.Name(), cfg, records)
}

func summarize(values []float64) (mean, std, p50, p95 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mean, std = stat.MeanStdDev(sorted, nil)
	p50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	p95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return mean, std, p50, p95
}

func printSummary(device string, cfg *gsplat.Config, records []FrameRecord) {
	column := func(get func(FrameRecord) float64) []float64 {
		out := make([]float64, len(records))
		for i, r := range records {
			out[i] = get(r)
		}
		return out
	}
	eyes := 1
	if cfg.Bench.Stereo {
		eyes = 2
	}
	fmt.Printf("device %s, %d splats, %d frames, %d eye(s)\n", device, cfg.Bench.Splats, len(records), eyes)
	fmt.Printf("  %-6s %9s %9s %9s %9s\n", "stage", "mean ms", "std", "p50", "p95")
	for _, c := range []struct {
		name string
		get  func(FrameRecord) float64
	}{
		{"sort", func(r FrameRecord) float64 { return r.SortMs }},
		{"view", func(r FrameRecord) float64 { return r.ViewMs }},
		{"total", func(r FrameRecord) float64 { return r.TotalMs }},
	} {
		mean, std, p50, p95 := summarize(column(c.get))
		fmt.Printf("  %-6s %9.2f %9.2f %9.2f %9.2f\n", c.name, mean, std, p50, p95)
	}
}
