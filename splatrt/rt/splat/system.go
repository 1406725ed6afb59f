package splat

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/gpu"
)

// Profiler scope and counter names used by System.Render.
const (
	ScopeSort = "sort"
	ScopeView = "view"

	CountSplats    = "splats"
	CountRenderers = "renderers"
	CountDrawCalls = "drawcalls"
)

// DrawCall is the parameter block the rasterizer binds for one renderer and
// one eye.
type DrawCall struct {
	RendererID uuid.UUID
	Eye        int
	Order      gpu.Buffer
	View       gpu.Buffer

	Pos    gpu.Buffer
	Other  gpu.Buffer
	SH     gpu.Buffer
	Color  gpu.Buffer
	Chunks gpu.Buffer

	SplatCount  uint32
	SplatFormat uint32
	ChunkCount  uint32
	BitsValid   bool
	Settings    Settings
}

// DrawCall returns the draw parameters of eye. ok is false without a valid
// render setup.
func (r *Renderer) DrawCall(eye int) (DrawCall, bool) {
	if eye < 0 || eye >= core.MaxEyes || !r.HasValidRenderSetup() {
		return DrawCall{}, false
	}
	s := r.store
	return DrawCall{
		RendererID:  r.ID,
		Eye:         eye,
		Order:       r.eyes[eye].order,
		View:        r.eyes[eye].view,
		Pos:         s.pos,
		Other:       s.other,
		SH:          s.sh,
		Color:       s.color,
		Chunks:      s.chunks,
		SplatCount:  uint32(s.count),
		SplatFormat: s.format.Word(),
		ChunkCount:  uint32(s.chunkCount),
		BitsValid:   r.edit != nil,
		Settings:    r.Settings.clamped(),
	}, true
}

// System keeps the active renderers and runs their per frame sort and view
// work for a camera.
type System struct {
	renderers map[uuid.UUID]*Renderer
	log       gsplat.Logger
	Profiler  *Profiler
}

func NewSystem(log gsplat.Logger) *System {
	return &System{
		renderers: make(map[uuid.UUID]*Renderer),
		log:       gsplat.OrNop(log),
		Profiler:  NewProfiler(),
	}
}

func (s *System) Register(r *Renderer) {
	s.renderers[r.ID] = r
}

// Unregister removes the renderer without releasing it.
func (s *System) Unregister(id uuid.UUID) {
	delete(s.renderers, id)
}

func (s *System) Renderer(id uuid.UUID) (*Renderer, bool) {
	r, ok := s.renderers[id]
	return r, ok
}

func (s *System) Len() int { return len(s.renderers) }

// Gather returns the renderable renderers in draw order: higher RenderOrder
// first, then far to near by distance from the first eye to the object
// origin. Preview cameras gather nothing.
func (s *System) Gather(cam *core.Camera) []*Renderer {
	if cam == nil || cam.Category == core.CameraPreview {
		return nil
	}
	camPos := cam.Eyes[0].Position
	type entry struct {
		r    *Renderer
		dist float32
	}
	var active []entry
	for _, r := range s.renderers {
		if !r.HasValidRenderSetup() {
			continue
		}
		d := r.Transform.Position.Sub(camPos)
		active = append(active, entry{r, d.Dot(d)})
	}
	sort.Slice(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if a.r.Settings.RenderOrder != b.r.Settings.RenderOrder {
			return a.r.Settings.RenderOrder > b.r.Settings.RenderOrder
		}
		if a.dist != b.dist {
			return a.dist > b.dist
		}
		return a.r.ID.String() < b.r.ID.String()
	})
	out := make([]*Renderer, len(active))
	for i, e := range active {
		out[i] = e.r
	}
	return out
}

// Render sorts every SortNthFrame frames, refreshes view data and returns
// the draw calls for each active eye. A failing renderer is skipped and its
// error joined into the result.
func (s *System) Render(cam *core.Camera) ([]DrawCall, error) {
	s.Profiler.Reset()
	active := s.Gather(cam)
	var calls []DrawCall
	var errs []error
	for _, r := range active {
		if r.frameCounter%r.Settings.clamped().SortNthFrame == 0 {
			s.Profiler.BeginScope(ScopeSort)
			err := r.SortPoints(cam)
			s.Profiler.EndScope(ScopeSort)
			if err != nil {
				s.log.Errorf("splat renderer %q: %v", r.Name, err)
				errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
				continue
			}
		}
		r.frameCounter++

		s.Profiler.BeginScope(ScopeView)
		err := r.CalcViewData(cam)
		s.Profiler.EndScope(ScopeView)
		if err != nil {
			s.log.Errorf("splat renderer %q: %v", r.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
			continue
		}
		for eye := 0; eye < eyeCount(cam); eye++ {
			if dc, ok := r.DrawCall(eye); ok {
				calls = append(calls, dc)
			}
		}
		s.Profiler.AddCount(CountSplats, r.store.count)
	}
	s.Profiler.AddCount(CountRenderers, len(active))
	s.Profiler.AddCount(CountDrawCalls, len(calls))
	return calls, errors.Join(errs...)
}

// Release releases every registered renderer and empties the registry.
func (s *System) Release() {
	for id, r := range s.renderers {
		r.Release()
		delete(s.renderers, id)
	}
}
