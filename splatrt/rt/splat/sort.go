package splat

import (
	"fmt"

	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/gpu"
)

// SortPoints recomputes the view depth of every splat and sorts each active
// eye's draw order back to front. Without a valid sorter it does nothing.
func (r *Renderer) SortPoints(cam *core.Camera) error {
	if cam == nil || cam.Category == core.CameraPreview || !r.HasValidRenderSetup() {
		return nil
	}
	if !r.sorter.Valid() {
		r.log.Debugf("splat renderer %q: sort unsupported on %s", r.Name, r.dev.Name())
		return nil
	}
	p, b, err := r.frame()
	if err != nil {
		return err
	}
	setCamera(p, cam)
	eyes := eyeCount(cam)
	count := uint32(r.store.count)
	if err := r.dev.Dispatch(gpu.KernelCalcDistances, p, b, gpu.Groups(count, uint32(eyes))); err != nil {
		return fmt.Errorf("calc distances: %w", err)
	}
	for i := 0; i < eyes; i++ {
		e := &r.eyes[i]
		err := r.sorter.Dispatch(gpu.SortArgs{Keys: e.dist, Values: e.order, Count: count, Resources: e.sortRes})
		if err != nil {
			return fmt.Errorf("sort eye %d: %w", i, err)
		}
	}
	return nil
}

// DrawOrder reads back the sorted splat indices of one eye.
func (r *Renderer) DrawOrder(eye int) ([]uint32, error) {
	if !r.HasValidRenderSetup() || eye < 0 || eye >= core.MaxEyes {
		return nil, ErrNoStore
	}
	return r.dev.Read(r.eyes[eye].order, 0, r.store.count)
}
