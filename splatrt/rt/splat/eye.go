package splat

import (
	"fmt"

	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/gpu"
)

// eyeState is the size dependent sort and view state of one eye.
type eyeState struct {
	order   gpu.Buffer
	dist    gpu.Buffer
	view    gpu.Buffer
	sortRes gpu.SortResources
}

func (e *eyeState) release() {
	for _, b := range []*gpu.Buffer{&e.order, &e.dist, &e.view} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
	if e.sortRes != nil {
		e.sortRes.Release()
		e.sortRes = nil
	}
}

var eyeLabels = [core.MaxEyes]string{"L", "R"}

// newEyes allocates both eyes for count splats and resets the draw order to
// the identity permutation. Both eyes always exist so that a mono frame can
// bind the right eye slots too.
func newEyes(dev gpu.Device, sorter gpu.Sorter, name string, count int) ([core.MaxEyes]eyeState, error) {
	var eyes [core.MaxEyes]eyeState
	fail := func(err error) ([core.MaxEyes]eyeState, error) {
		for i := range eyes {
			eyes[i].release()
		}
		return eyes, err
	}
	for i := range eyes {
		e := &eyes[i]
		var err error
		if e.order, err = dev.NewBuffer(name+".Order"+eyeLabels[i], count); err != nil {
			return fail(fmt.Errorf("failed to create order buffer: %w", err))
		}
		if e.dist, err = dev.NewBuffer(name+".Distances"+eyeLabels[i], count); err != nil {
			return fail(fmt.Errorf("failed to create distance buffer: %w", err))
		}
		if e.view, err = dev.NewBuffer(name+".ViewData"+eyeLabels[i], count*core.ViewDataWords); err != nil {
			return fail(fmt.Errorf("failed to create view buffer: %w", err))
		}
		if sorter.Valid() {
			if e.sortRes, err = sorter.LoadResources(uint32(count)); err != nil {
				return fail(fmt.Errorf("failed to create sort resources: %w", err))
			}
		}
	}

	var b gpu.Bindings
	b.Set(gpu.SlotOrderL, eyes[0].order).Set(gpu.SlotOrderR, eyes[1].order)
	p := &gpu.Params{SplatCount: uint32(count)}
	if err := dev.Dispatch(gpu.KernelSetIndices, p, &b, gpu.Groups(uint32(count), 1)); err != nil {
		return fail(fmt.Errorf("failed to reset draw order: %w", err))
	}
	return eyes, nil
}

func (r *Renderer) bindEyes(b *gpu.Bindings) *gpu.Bindings {
	return b.Set(gpu.SlotOrderL, r.eyes[0].order).Set(gpu.SlotOrderR, r.eyes[1].order).
		Set(gpu.SlotDistL, r.eyes[0].dist).Set(gpu.SlotDistR, r.eyes[1].dist).
		Set(gpu.SlotViewL, r.eyes[0].view).Set(gpu.SlotViewR, r.eyes[1].view)
}
