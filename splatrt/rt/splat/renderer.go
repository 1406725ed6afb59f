package splat

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/gpu"
)

// Settings are the per renderer display parameters.
type Settings struct {
	SplatScale   float32
	OpacityScale float32
	SHOrder      int
	SHOnly       bool
	SortNthFrame int
	RenderOrder  int
}

func SettingsFromConfig(c gsplat.RendererConfig) Settings {
	return Settings{
		SplatScale:   c.SplatScale,
		OpacityScale: c.OpacityScale,
		SHOrder:      c.SHOrder,
		SHOnly:       c.SHOnly,
		SortNthFrame: c.SortNthFrame,
		RenderOrder:  c.RenderOrder,
	}
}

func (s Settings) clamped() Settings {
	s.SplatScale = max(0.1, min(2, s.SplatScale))
	s.OpacityScale = max(0.05, min(20, s.OpacityScale))
	s.SHOrder = max(0, min(3, s.SHOrder))
	s.SortNthFrame = max(1, min(30, s.SortNthFrame))
	return s
}

// Renderer draws one splat asset placed in the world by Transform. All
// methods are meant to be called from a single render/edit thread.
type Renderer struct {
	ID        uuid.UUID
	Name      string
	Settings  Settings
	Transform *core.Transform
	Cutouts   []core.Cutout

	dev     gpu.Device
	sorter  gpu.Sorter
	log     gsplat.Logger
	editCfg gsplat.EditConfig

	asset       *core.Asset
	loadedAsset *core.Asset
	loadedHash  [32]byte

	store     *Store
	eyes      [core.MaxEyes]eyeState
	edit      *editState
	cutoutBuf gpu.Buffer
	noBits    gpu.Buffer

	frameCounter int
	modified     bool
	setupErr     error
}

// NewRenderer creates a renderer without data. dev may be nil, in which case
// every render and edit call is a no-op.
func NewRenderer(dev gpu.Device, cfg *gsplat.Config, log gsplat.Logger) *Renderer {
	if cfg == nil {
		cfg = gsplat.DefaultConfig()
	}
	r := &Renderer{
		ID:        uuid.New(),
		Settings:  SettingsFromConfig(cfg.Renderer),
		Transform: core.NewTransform(),
		dev:       dev,
		log:       gsplat.OrNop(log),
		editCfg:   cfg.Edit,
	}
	if dev != nil {
		r.sorter = dev.NewSorter()
	} else {
		r.sorter = gpu.InvalidSorter()
	}
	return r
}

// SetAsset switches the renderer to a. The device state is rebuilt lazily on
// the next render or edit call.
func (r *Renderer) SetAsset(a *core.Asset) {
	r.asset = a
	if a != nil && r.Name == "" {
		r.Name = a.Name
	}
}

func (r *Renderer) Asset() *core.Asset { return r.asset }

// sync recreates the device state when the asset or its content hash changed.
func (r *Renderer) sync() {
	if r.asset == r.loadedAsset && (r.asset == nil || r.asset.DataHash == r.loadedHash) {
		return
	}
	r.releaseResources()
	r.loadedAsset = r.asset
	r.setupErr = nil
	if r.asset == nil {
		return
	}
	r.loadedHash = r.asset.DataHash
	if r.dev == nil {
		r.setupErr = fmt.Errorf("renderer %q has no device", r.Name)
		r.log.Errorf("%v", r.setupErr)
		return
	}
	if err := r.createResources(); err != nil {
		r.setupErr = err
		r.log.Errorf("splat renderer %q: %v", r.Name, err)
		r.releaseResources()
	}
}

func (r *Renderer) createResources() error {
	store, err := NewStore(r.dev, r.asset)
	if err != nil {
		return err
	}
	r.store = store
	if r.eyes, err = newEyes(r.dev, r.sorter, r.asset.Name, store.count); err != nil {
		return err
	}
	if r.noBits, err = r.dev.NewBuffer(r.asset.Name+".NoBits", 1); err != nil {
		return fmt.Errorf("failed to create placeholder bits: %w", err)
	}
	if r.cutoutBuf, err = r.dev.NewBuffer(r.asset.Name+".Cutouts", core.CutoutWords); err != nil {
		return fmt.Errorf("failed to create cutout buffer: %w", err)
	}
	r.log.Debugf("splat renderer %q: %d splats on %s", r.Name, store.count, r.dev.Name())
	return nil
}

func (r *Renderer) releaseResources() {
	r.store.Release()
	r.store = nil
	for i := range r.eyes {
		r.eyes[i].release()
	}
	r.edit.release()
	r.edit = nil
	for _, b := range []*gpu.Buffer{&r.cutoutBuf, &r.noBits} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
	r.frameCounter = 0
}

// Release frees all device state. The renderer can be reused after another
// SetAsset.
func (r *Renderer) Release() {
	r.releaseResources()
	r.asset = nil
	r.loadedAsset = nil
}

// HasValidAsset reports whether the assigned asset can be rendered.
func (r *Renderer) HasValidAsset() bool {
	return r.asset.Valid()
}

// HasValidRenderSetup reports whether device state exists for the asset.
func (r *Renderer) HasValidRenderSetup() bool {
	r.sync()
	return r.store != nil && r.eyes[0].order != nil
}

// SplatCount is the number of splats held on the device.
func (r *Renderer) SplatCount() int {
	if !r.HasValidRenderSetup() {
		return 0
	}
	return r.store.count
}

func (r *Renderer) Store() *Store {
	r.sync()
	return r.store
}

// Modified reports whether edits changed the splat data since the last
// ClearModified.
func (r *Renderer) Modified() bool { return r.modified }
func (r *Renderer) ClearModified() { r.modified = false }

// uploadCutouts refreshes the cutout buffer for the current transform and
// returns the number of cutouts.
func (r *Renderer) uploadCutouts() (uint32, error) {
	words := core.CutoutWordsFor(r.Cutouts, r.Transform.ObjectToWorld())
	if r.cutoutBuf == nil || r.cutoutBuf.Words() < len(words) {
		if r.cutoutBuf != nil {
			r.cutoutBuf.Release()
		}
		buf, err := r.dev.NewBuffer(r.Name+".Cutouts", len(words))
		if err != nil {
			r.cutoutBuf = nil
			return 0, fmt.Errorf("failed to create cutout buffer: %w", err)
		}
		r.cutoutBuf = buf
	}
	if err := r.dev.Write(r.cutoutBuf, 0, words); err != nil {
		return 0, fmt.Errorf("failed to upload cutouts: %w", err)
	}
	return uint32(len(r.Cutouts)), nil
}

// frame builds the params and bindings shared by every kernel of the
// renderer. The caller must have checked HasValidRenderSetup.
func (r *Renderer) frame() (*gpu.Params, *gpu.Bindings, error) {
	cutouts, err := r.uploadCutouts()
	if err != nil {
		return nil, nil, err
	}
	s := r.Settings.clamped()
	p := &gpu.Params{
		ObjectToWorld: r.Transform.ObjectToWorld(),
		WorldToObject: r.Transform.WorldToObject(),
		CopyMatrix:    mgl32.Ident4(),
		CutoutCount:   cutouts,
		SplatScale:    s.SplatScale,
		OpacityScale:  s.OpacityScale,
		SHOrder:       uint32(s.SHOrder),
		SHOnly:        s.SHOnly,
	}
	r.store.params(p)

	b := &gpu.Bindings{}
	r.store.bind(b).Set(gpu.SlotCutouts, r.cutoutBuf)
	r.bindEyes(b)
	if r.edit != nil {
		p.BitsValid = true
		p.BufferSize = uint32(r.edit.words)
		b.Set(gpu.SlotDeleted, r.edit.deleted).
			Set(gpu.SlotSelected, r.edit.selected).
			Set(gpu.SlotSelectedAtomic, r.edit.selected)
	} else {
		b.Set(gpu.SlotDeleted, r.noBits).Set(gpu.SlotSelected, r.noBits)
	}
	return p, b, nil
}

func setCamera(p *gpu.Params, cam *core.Camera) {
	for i := 0; i < core.MaxEyes; i++ {
		p.EyeView[i] = cam.Eyes[i].View
		p.EyeProj[i] = cam.Eyes[i].Proj
		p.EyeCamPos[i] = cam.Eyes[i].Position
	}
	p.ScreenParams = cam.ScreenParams()
	p.ViewCount = uint32(eyeCount(cam))
}

func eyeCount(cam *core.Camera) int {
	return max(1, min(core.MaxEyes, cam.EyeCount))
}
