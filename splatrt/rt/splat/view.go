package splat

import (
	"fmt"

	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/gpu"
)

// CalcViewData projects every splat into the view buffer of each active eye.
// Preview cameras get no work.
func (r *Renderer) CalcViewData(cam *core.Camera) error {
	if cam == nil || cam.Category == core.CameraPreview || !r.HasValidRenderSetup() {
		return nil
	}
	p, b, err := r.frame()
	if err != nil {
		return err
	}
	setCamera(p, cam)
	groups := gpu.Groups(uint32(r.store.count), uint32(eyeCount(cam)))
	if err := r.dev.Dispatch(gpu.KernelCalcViewData, p, b, groups); err != nil {
		return fmt.Errorf("calc view data: %w", err)
	}
	return nil
}

// ViewData reads back the view records of one eye.
func (r *Renderer) ViewData(eye int) ([]core.ViewData, error) {
	if !r.HasValidRenderSetup() || eye < 0 || eye >= core.MaxEyes {
		return nil, ErrNoStore
	}
	n := r.store.count
	words, err := r.dev.Read(r.eyes[eye].view, 0, n*core.ViewDataWords)
	if err != nil {
		return nil, err
	}
	out := make([]core.ViewData, n)
	for i := range out {
		out[i] = core.ViewDataFromWords(words[i*core.ViewDataWords:])
	}
	return out, nil
}
