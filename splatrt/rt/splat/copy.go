package splat

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/gpu"
)

const identityEpsilon = 1e-5

// copyTarget is the float32 layout a copy writes into.
type copyTarget struct {
	store   *Store
	deleted gpu.Buffer
}

// copySplats copies count splats from srcStart to dstStart of dst, moved by
// m. Entries past either end are skipped by the kernel.
func (r *Renderer) copySplats(dst copyTarget, m mgl32.Mat4, srcStart, dstStart, count int) error {
	if count <= 0 {
		return nil
	}
	p, b, err := r.frame()
	if err != nil {
		return err
	}
	rot, scale := core.DecomposeRotationScale(m)
	p.CopyMatrix = m
	p.CopyRot = core.QuatToVec4(rot)
	p.CopyScale = scale
	if core.IsIdentity(m, identityEpsilon) {
		p.CopyFlags |= gpu.CopyFlagIdentity
	}
	p.CopySrcStart = uint32(srcStart)
	p.CopyDstStart = uint32(dstStart)
	p.CopyCount = uint32(count)
	p.CopyDstSize = uint32(dst.store.count)
	b.Set(gpu.SlotCopyDstPos, dst.store.pos).
		Set(gpu.SlotCopyDstOther, dst.store.other).
		Set(gpu.SlotCopyDstSH, dst.store.sh).
		Set(gpu.SlotCopyDstColor, dst.store.color).
		Set(gpu.SlotCopyDstDeleted, dst.deleted)
	if err := r.dev.Dispatch(gpu.KernelCopySplats, p, b, gpu.Groups(uint32(count), 1)); err != nil {
		return fmt.Errorf("copy splats: %w", err)
	}
	return nil
}

// CopySplatsInto copies count splats starting at srcStart into dst starting
// at dstStart. Positions and orientations are moved from this renderer's
// object space into dst's. dst must hold float32 unquantized data and be a
// different renderer on the same device.
func (r *Renderer) CopySplatsInto(dst *Renderer, srcStart, dstStart, count int) error {
	if dst == nil || dst == r || dst.dev != r.dev {
		return ErrIncompatibleStore
	}
	if srcStart < 0 || dstStart < 0 || count < 0 {
		err := fmt.Errorf("%w: copy range %d..%d", ErrInvalidSplatCount, srcStart, srcStart+count)
		r.log.Errorf("splat renderer %q: %v", r.Name, err)
		return err
	}
	if !r.ensureEdit() || !dst.ensureEdit() {
		return ErrNoStore
	}
	if !dst.store.editable() {
		return fmt.Errorf("%w: %q is not float32 unquantized", ErrIncompatibleStore, dst.Name)
	}
	m := dst.Transform.WorldToObject().Mul4(r.Transform.ObjectToWorld())
	if err := r.copySplats(copyTarget{store: dst.store, deleted: dst.edit.deleted}, m, srcStart, dstStart, count); err != nil {
		return err
	}
	dst.modified = true
	return nil
}

// Resize changes the splat count. The first min(old, n) splats and their
// deleted bits survive; added splats are zero. Selection and gesture
// snapshots are dropped and the draw order is reset.
func (r *Renderer) Resize(n int) error {
	if n <= 0 || n > core.MaxSplats {
		err := fmt.Errorf("%w: %d", ErrInvalidSplatCount, n)
		r.log.Errorf("splat renderer %q: %v", r.Name, err)
		return err
	}
	if !r.HasValidRenderSetup() {
		return ErrNoStore
	}
	if r.store.Quantized() {
		r.log.Errorf("splat renderer %q: resize of chunk quantized data", r.Name)
		return ErrQuantizedResize
	}
	old := r.store.count
	if n == old {
		return nil
	}
	if !r.ensureEdit() {
		return ErrNoStore
	}

	store, err := newVeryHighStore(r.dev, r.Name, n)
	if err != nil {
		return err
	}
	edit, err := newEditState(r.dev, r.Name, n)
	if err != nil {
		store.Release()
		return err
	}
	if err := r.copySplats(copyTarget{store: store, deleted: edit.deleted}, mgl32.Ident4(), 0, 0, min(old, n)); err != nil {
		store.Release()
		edit.release()
		return err
	}
	eyes, err := newEyes(r.dev, r.sorter, r.Name, n)
	if err != nil {
		store.Release()
		edit.release()
		return err
	}

	r.store.Release()
	r.edit.release()
	for i := range r.eyes {
		r.eyes[i].release()
	}
	r.store, r.edit, r.eyes = store, edit, eyes
	r.frameCounter = 0
	r.modified = true
	r.log.Debugf("splat renderer %q: resized %d -> %d", r.Name, old, n)
	return r.UpdateCounts()
}
