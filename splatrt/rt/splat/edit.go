package splat

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/gpu"
)

// editState holds the selection and deletion masks (one bit per splat) and
// the gesture snapshots.
type editState struct {
	words            int
	selected         gpu.Buffer
	selectedSnapshot gpu.Buffer
	deleted          gpu.Buffer
	counts           gpu.Buffer

	// Allocated on the first StorePositionSnapshot and StoreOtherSnapshot.
	posSnapshot   gpu.Buffer
	otherSnapshot gpu.Buffer

	last core.EditCounts
}

func newEditState(dev gpu.Device, name string, count int) (*editState, error) {
	e := &editState{words: (count + 31) / 32}
	for _, b := range []struct {
		dst   *gpu.Buffer
		label string
		words int
	}{
		{&e.selected, "Selected", e.words},
		{&e.selectedSnapshot, "SelectedMouseDown", e.words},
		{&e.deleted, "Deleted", e.words},
		{&e.counts, "EditCounts", core.CountsWords},
	} {
		buf, err := dev.NewBuffer(name+"."+b.label, b.words)
		if err != nil {
			e.release()
			return nil, fmt.Errorf("failed to create %s buffer: %w", b.label, err)
		}
		*b.dst = buf
	}
	return e, nil
}

func (e *editState) release() {
	if e == nil {
		return
	}
	for _, b := range []*gpu.Buffer{&e.selected, &e.selectedSnapshot, &e.deleted, &e.counts, &e.posSnapshot, &e.otherSnapshot} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
}

// ensureEdit lazily creates the edit masks. It reports false when the
// renderer has nothing to edit.
func (r *Renderer) ensureEdit() bool {
	if !r.HasValidRenderSetup() {
		r.log.Debugf("splat renderer %q: edit without render setup", r.Name)
		return false
	}
	if r.edit != nil {
		return true
	}
	e, err := newEditState(r.dev, r.Name, r.store.count)
	if err != nil {
		r.log.Errorf("splat renderer %q: %v", r.Name, err)
		return false
	}
	r.edit = e
	return true
}

// EditCounts returns the counts and object space selection bounds of the
// last recompute.
func (r *Renderer) EditCounts() core.EditCounts {
	if r.edit == nil {
		return core.EditCounts{}
	}
	return r.edit.last
}

func (r *Renderer) SelectedCount() int { return int(r.EditCounts().Selected) }
func (r *Renderer) DeletedCount() int  { return int(r.EditCounts().Deleted) }
func (r *Renderer) CutCount() int      { return int(r.EditCounts().Cut) }

// SelectionBounds returns the world space bounds of the selection. ok is
// false when nothing is selected.
func (r *Renderer) SelectionBounds() (core.Bounds, bool) {
	c := r.EditCounts()
	if c.Selected == 0 {
		return core.Bounds{}, false
	}
	return c.Bounds.WorldBounds(r.Transform.ObjectToWorld()), true
}

// UpdateCounts recomputes the selected, deleted and cut counts and the
// selection bounds. It reads back the small counts block.
func (r *Renderer) UpdateCounts() error {
	if !r.ensureEdit() {
		return nil
	}
	p, b, err := r.frame()
	if err != nil {
		return err
	}
	b.Set(gpu.SlotDst, r.edit.counts).Set(gpu.SlotDstAtomic, r.edit.counts)
	if err := r.dev.Dispatch(gpu.KernelInitEditData, p, b, gpu.Groups(1, 1)); err != nil {
		return fmt.Errorf("init edit data: %w", err)
	}
	if err := r.dev.Dispatch(gpu.KernelUpdateEditData, p, b, gpu.Groups(uint32(r.edit.words), 1)); err != nil {
		return fmt.Errorf("update edit data: %w", err)
	}
	w, err := r.dev.Read(r.edit.counts, 0, core.CountsWords)
	if err != nil {
		return fmt.Errorf("read edit counts: %w", err)
	}
	r.edit.last = core.DecodeEditCounts(w, r.editCfg.MinBoundsExtent, r.editCfg.DegenerateVolumeEpsilon)
	return nil
}

func (r *Renderer) maskOp(k gpu.Kernel) error {
	if !r.ensureEdit() {
		return nil
	}
	p, b, err := r.frame()
	if err != nil {
		return err
	}
	b.Set(gpu.SlotDst, r.edit.selected)
	if err := r.dev.Dispatch(k, p, b, gpu.Groups(uint32(r.edit.words), 1)); err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	return r.UpdateCounts()
}

func (r *Renderer) SelectAll() error       { return r.maskOp(gpu.KernelSelectAll) }
func (r *Renderer) DeselectAll() error     { return r.maskOp(gpu.KernelClearBuffer) }
func (r *Renderer) InvertSelection() error { return r.maskOp(gpu.KernelInvertSelection) }

// StoreSelectionSnapshot records the selection at the start of a rect drag.
func (r *Renderer) StoreSelectionSnapshot() error {
	if !r.ensureEdit() {
		return nil
	}
	return r.dev.Copy(r.edit.selected, r.edit.selectedSnapshot)
}

func (r *Renderer) storeSnapshot(src gpu.Buffer, dst *gpu.Buffer, label string) error {
	if *dst == nil {
		buf, err := r.dev.NewBuffer(r.Name+"."+label, src.Words())
		if err != nil {
			return fmt.Errorf("failed to create %s buffer: %w", label, err)
		}
		*dst = buf
	}
	return r.dev.Copy(src, *dst)
}

// StorePositionSnapshot records positions at the start of a move, rotate or
// scale gesture.
func (r *Renderer) StorePositionSnapshot() error {
	if !r.ensureEdit() {
		return nil
	}
	return r.storeSnapshot(r.store.pos, &r.edit.posSnapshot, "PosMouseDown")
}

// StoreOtherSnapshot records rotations and scales at the start of a rotate
// gesture.
func (r *Renderer) StoreOtherSnapshot() error {
	if !r.ensureEdit() {
		return nil
	}
	return r.storeSnapshot(r.store.other, &r.edit.otherSnapshot, "OtherMouseDown")
}

// RectSelect restarts from the selection snapshot and adds, or with
// subtract removes, every live splat whose projected center falls inside the
// pixel rectangle. Repeated calls during one drag do not accumulate.
func (r *Renderer) RectSelect(rectMin, rectMax mgl32.Vec2, cam *core.Camera, subtract bool) error {
	if cam == nil || !r.ensureEdit() {
		return nil
	}
	if err := r.dev.Copy(r.edit.selectedSnapshot, r.edit.selected); err != nil {
		return err
	}
	p, b, err := r.frame()
	if err != nil {
		return err
	}
	setCamera(p, cam)
	p.SelectionRect = mgl32.Vec4{
		min(rectMin[0], rectMax[0]), min(rectMin[1], rectMax[1]),
		max(rectMin[0], rectMax[0]), max(rectMin[1], rectMax[1]),
	}
	p.SelectionMode = gpu.SelectionAdd
	if subtract {
		p.SelectionMode = gpu.SelectionSubtract
	}
	if err := r.dev.Dispatch(gpu.KernelSelectionUpdate, p, b, gpu.Groups(uint32(r.store.count), 1)); err != nil {
		return fmt.Errorf("selection update: %w", err)
	}
	return r.UpdateCounts()
}

// gestureReady checks the preconditions of the selection transforms.
func (r *Renderer) gestureReady(op string, needOther bool) bool {
	if !r.ensureEdit() {
		return false
	}
	if !r.store.editable() {
		r.log.Debugf("splat renderer %q: %s needs float32 unquantized data", r.Name, op)
		return false
	}
	if r.edit.posSnapshot == nil || (needOther && r.edit.otherSnapshot == nil) {
		r.log.Debugf("splat renderer %q: %s without gesture snapshot", r.Name, op)
		return false
	}
	return true
}

func (r *Renderer) gesture(k gpu.Kernel, set func(p *gpu.Params)) error {
	p, b, err := r.frame()
	if err != nil {
		return err
	}
	set(p)
	b.Set(gpu.SlotPosMouseDown, r.edit.posSnapshot)
	if r.edit.otherSnapshot != nil {
		b.Set(gpu.SlotOtherMouseDown, r.edit.otherSnapshot)
	}
	if err := r.dev.Dispatch(k, p, b, gpu.Groups(uint32(r.store.count), 1)); err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	r.modified = true
	return r.UpdateCounts()
}

// TranslateSelection moves selected splats by an object space delta relative
// to the position snapshot.
func (r *Renderer) TranslateSelection(localDelta mgl32.Vec3) error {
	if !r.gestureReady("translate", false) {
		return nil
	}
	return r.gesture(gpu.KernelTranslateSelection, func(p *gpu.Params) {
		p.SelectionDelta = localDelta
	})
}

// RotateSelection rotates selected splats by a world space rotation around
// an object space center, relative to the snapshots.
func (r *Renderer) RotateSelection(localCenter mgl32.Vec3, rot mgl32.Quat) error {
	if !r.gestureReady("rotate", true) {
		return nil
	}
	rot = rot.Normalize()
	objRot := r.Transform.Rotation.Normalize()
	local := objRot.Conjugate().Mul(rot).Mul(objRot)
	return r.gesture(gpu.KernelRotateSelection, func(p *gpu.Params) {
		p.SelectionCenter = localCenter
		p.SelectionRot = core.QuatToVec4(rot)
		p.SelectionRotLocal = core.QuatToVec4(local)
	})
}

// ScaleSelection scales selected splat positions along world axes around an
// object space center, relative to the position snapshot.
func (r *Renderer) ScaleSelection(localCenter, scale mgl32.Vec3) error {
	if !r.gestureReady("scale", false) {
		return nil
	}
	return r.gesture(gpu.KernelScaleSelection, func(p *gpu.Params) {
		p.SelectionCenter = localCenter
		p.SelectionDelta = scale
	})
}

// DeleteSelected moves the selection into the deleted mask and clears it.
// Deletion is permanent until the store is recreated.
func (r *Renderer) DeleteSelected() error {
	if !r.ensureEdit() {
		return nil
	}
	if err := r.UpdateCounts(); err != nil {
		return err
	}
	before := r.edit.last.Deleted
	p, b, err := r.frame()
	if err != nil {
		return err
	}
	b.Set(gpu.SlotSrc, r.edit.selected).Set(gpu.SlotDst, r.edit.deleted)
	if err := r.dev.Dispatch(gpu.KernelOrBuffers, p, b, gpu.Groups(uint32(r.edit.words), 1)); err != nil {
		return fmt.Errorf("%s: %w", gpu.KernelOrBuffers, err)
	}
	if err := r.DeselectAll(); err != nil {
		return err
	}
	if r.edit.last.Deleted != before {
		r.modified = true
	}
	return nil
}

// SelectionMask reads back the selection bits.
func (r *Renderer) SelectionMask() ([]uint32, error) {
	if !r.ensureEdit() {
		return nil, ErrNoStore
	}
	return r.dev.Read(r.edit.selected, 0, r.edit.words)
}

// DeletedMask reads back the deletion bits.
func (r *Renderer) DeletedMask() ([]uint32, error) {
	if !r.ensureEdit() {
		return nil, ErrNoStore
	}
	return r.dev.Read(r.edit.deleted, 0, r.edit.words)
}
