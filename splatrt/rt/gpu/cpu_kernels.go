package gpu

import (
	"math/bits"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gsplat/splatrt/rt/core"
)

// invocation is the resolved state of one dispatch shared by all lanes.
type invocation struct {
	p       *Params
	buf     [SlotCount][]uint32
	src     core.SplatSource
	cutouts []core.CutoutData
}

func newInvocation(k Kernel, p *Params, b *Bindings) (*invocation, error) {
	if p == nil {
		p = &Params{}
	}
	inv := &invocation{p: p}
	for _, s := range k.Slots() {
		if s == SlotParams {
			continue
		}
		data, err := cpuData(b[s])
		if err != nil {
			return nil, err
		}
		inv.buf[s] = data
	}
	inv.src = core.SplatSource{
		Format:     core.FormatFromWord(p.SplatFormat),
		Count:      p.SplatCount,
		ChunkCount: p.ChunkCount,
		Pos:        inv.buf[SlotPos],
		Other:      inv.buf[SlotOther],
		SH:         inv.buf[SlotSH],
		Color:      inv.buf[SlotColor],
		Chunks:     inv.buf[SlotChunks],
	}
	if inv.buf[SlotCutouts] != nil && p.CutoutCount > 0 {
		inv.cutouts = core.DecodeCutouts(inv.buf[SlotCutouts], p.CutoutCount)
	}
	return inv, nil
}

type cpuKernel func(inv *invocation, idx, z uint32)

var cpuKernels = [kernelCount]cpuKernel{
	KernelSetIndices:         kSetIndices,
	KernelCalcDistances:      kCalcDistances,
	KernelCalcViewData:       kCalcViewData,
	KernelInitEditData:       kInitEditData,
	KernelUpdateEditData:     kUpdateEditData,
	KernelClearBuffer:        kClearBuffer,
	KernelInvertSelection:    kInvertSelection,
	KernelSelectAll:          kSelectAll,
	KernelOrBuffers:          kOrBuffers,
	KernelSelectionUpdate:    kSelectionUpdate,
	KernelTranslateSelection: kTranslateSelection,
	KernelRotateSelection:    kRotateSelection,
	KernelScaleSelection:     kScaleSelection,
	KernelExportData:         kExportData,
	KernelCopySplats:         kCopySplats,
}

func bitSet(words []uint32, idx uint32) bool {
	return words[idx>>5]&(1<<(idx&31)) != 0
}

func (inv *invocation) deleted(idx uint32) bool {
	return inv.p.BitsValid && bitSet(inv.buf[SlotDeleted], idx)
}

func (inv *invocation) cut(pos mgl32.Vec3) bool {
	return len(inv.cutouts) > 0 && core.IsSplatCut(inv.cutouts, pos)
}

// lastWordMask keeps the bits of real splats in the final mask word.
func (inv *invocation) lastWordMask(word uint32) uint32 {
	if word == inv.p.BufferSize-1 {
		if rem := inv.p.SplatCount & 31; rem != 0 {
			return (1 << rem) - 1
		}
	}
	return 0xFFFFFFFF
}

func kSetIndices(inv *invocation, idx, _ uint32) {
	if idx >= inv.p.SplatCount {
		return
	}
	inv.buf[SlotOrderL][idx] = idx
	inv.buf[SlotOrderR][idx] = idx
}

func (inv *invocation) eyeBuffers(eye uint32, left, right Slot) []uint32 {
	if eye == 0 {
		return inv.buf[left]
	}
	return inv.buf[right]
}

func kCalcDistances(inv *invocation, idx, eye uint32) {
	if idx >= inv.p.SplatCount || eye >= 2 {
		return
	}
	order := inv.eyeBuffers(eye, SlotOrderL, SlotOrderR)
	dist := inv.eyeBuffers(eye, SlotDistL, SlotDistR)
	pos := inv.src.LoadPos(order[idx])
	mv := inv.p.EyeView[eye].Mul4(inv.p.ObjectToWorld)
	depth := mv.Mul4x1(pos.Vec4(1)).Z()
	dist[idx] = core.FloatToSortableUint(depth)
}

func kCalcViewData(inv *invocation, idx, eye uint32) {
	if idx >= inv.p.SplatCount || eye >= 2 {
		return
	}
	p := inv.p
	sp := inv.src.Load(idx)
	v := core.ProjectSplat(&sp, &core.ViewParams{
		ObjectToWorld: p.ObjectToWorld,
		WorldToObject: p.WorldToObject,
		View:          p.EyeView[eye],
		Proj:          p.EyeProj[eye],
		CameraPos:     p.EyeCamPos[eye],
		ScreenWidth:   p.ScreenParams[0],
		SplatScale:    p.SplatScale,
		OpacityScale:  p.OpacityScale,
		SHOrder:       int(p.SHOrder),
		SHOnly:        p.SHOnly,
	})
	if inv.deleted(idx) || inv.cut(sp.Pos) {
		v.Pos[3] = 0
	}
	view := inv.eyeBuffers(eye, SlotViewL, SlotViewR)
	v.Put(view[idx*core.ViewDataWords:])
}

func kInitEditData(inv *invocation, idx, _ uint32) {
	if idx != 0 {
		return
	}
	w := core.InitialCountsWords()
	copy(inv.buf[SlotDst], w[:])
}

func atomicMin(addr *uint32, v uint32) {
	for {
		old := atomic.LoadUint32(addr)
		if v >= old || atomic.CompareAndSwapUint32(addr, old, v) {
			return
		}
	}
}

func atomicMax(addr *uint32, v uint32) {
	for {
		old := atomic.LoadUint32(addr)
		if v <= old || atomic.CompareAndSwapUint32(addr, old, v) {
			return
		}
	}
}

// kUpdateEditData reduces one mask word: selected and deleted counts, the
// cut count of live splats and the bounds of every live selected splat.
func kUpdateEditData(inv *invocation, word, _ uint32) {
	p := inv.p
	if word >= p.BufferSize {
		return
	}
	sel := inv.buf[SlotSelected][word]
	del := inv.buf[SlotDeleted][word]
	sel &^= del

	dst := inv.buf[SlotDstAtomic]
	var cutCount uint32
	var lo, hi [3]uint32
	lo = [3]uint32{0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFF}
	found := false
	for b := uint32(0); b < 32; b++ {
		idx := word*32 + b
		if idx >= p.SplatCount {
			break
		}
		mask := uint32(1) << b
		if del&mask != 0 {
			continue
		}
		selected := sel&mask != 0
		if !selected && len(inv.cutouts) == 0 {
			continue
		}
		pos := inv.src.LoadPos(idx)
		if inv.cut(pos) {
			cutCount++
		}
		if !selected {
			continue
		}
		found = true
		for k := 0; k < 3; k++ {
			key := core.FloatToSortableUint(pos[k])
			lo[k] = min(lo[k], key)
			hi[k] = max(hi[k], key)
		}
	}
	atomic.AddUint32(&dst[core.CountSelected], uint32(bits.OnesCount32(sel)))
	atomic.AddUint32(&dst[core.CountDeleted], uint32(bits.OnesCount32(del)))
	if cutCount > 0 {
		atomic.AddUint32(&dst[core.CountCut], cutCount)
	}
	if found {
		for k := 0; k < 3; k++ {
			atomicMin(&dst[core.CountMin+k], lo[k])
			atomicMax(&dst[core.CountMax+k], hi[k])
		}
	}
}

func kClearBuffer(inv *invocation, idx, _ uint32) {
	if idx >= inv.p.BufferSize {
		return
	}
	inv.buf[SlotDst][idx] = 0
}

func kInvertSelection(inv *invocation, idx, _ uint32) {
	if idx >= inv.p.BufferSize {
		return
	}
	dst := inv.buf[SlotDst]
	dst[idx] = ^dst[idx] &^ inv.buf[SlotDeleted][idx] & inv.lastWordMask(idx)
}

func kSelectAll(inv *invocation, idx, _ uint32) {
	if idx >= inv.p.BufferSize {
		return
	}
	inv.buf[SlotDst][idx] = ^inv.buf[SlotDeleted][idx] & inv.lastWordMask(idx)
}

func kOrBuffers(inv *invocation, idx, _ uint32) {
	if idx >= inv.p.BufferSize {
		return
	}
	inv.buf[SlotDst][idx] |= inv.buf[SlotSrc][idx]
}

func kSelectionUpdate(inv *invocation, idx, _ uint32) {
	p := inv.p
	if idx >= p.SplatCount || inv.deleted(idx) {
		return
	}
	pos := inv.src.LoadPos(idx)
	if inv.cut(pos) {
		return
	}
	mvp := p.EyeProj[0].Mul4(p.EyeView[0]).Mul4(p.ObjectToWorld)
	clip := mvp.Mul4x1(pos.Vec4(1))
	if clip[3] <= 0 {
		return
	}
	px := core.ClipToPixel(clip, p.ScreenParams[0], p.ScreenParams[1])
	r := p.SelectionRect
	if px[0] < r[0] || px[0] > r[2] || px[1] < r[1] || px[1] > r[3] {
		return
	}
	addr := &inv.buf[SlotSelectedAtomic][idx>>5]
	bit := uint32(1) << (idx & 31)
	if p.SelectionMode == SelectionAdd {
		atomic.OrUint32(addr, bit)
	} else {
		atomic.AndUint32(addr, ^bit)
	}
}

func loadPosF32(w []uint32, idx uint32) mgl32.Vec3 {
	f := w[idx*3:]
	return mgl32.Vec3{u2f(f[0]), u2f(f[1]), u2f(f[2])}
}

func storePosF32(w []uint32, idx uint32, v mgl32.Vec3) {
	f := w[idx*3:]
	f[0], f[1], f[2] = f2u(v[0]), f2u(v[1]), f2u(v[2])
}

// Selection transforms work on unquantized float positions and read their
// base state from the gesture snapshot.

func kTranslateSelection(inv *invocation, idx, _ uint32) {
	p := inv.p
	if idx >= p.SplatCount || !bitSet(inv.buf[SlotSelected], idx) {
		return
	}
	pos := loadPosF32(inv.buf[SlotPosMouseDown], idx).Add(p.SelectionDelta)
	storePosF32(inv.buf[SlotPos], idx, pos)
}

func kRotateSelection(inv *invocation, idx, _ uint32) {
	p := inv.p
	if idx >= p.SplatCount || !bitSet(inv.buf[SlotSelected], idx) {
		return
	}
	pos := loadPosF32(inv.buf[SlotPosMouseDown], idx).Sub(p.SelectionCenter)
	pos = p.ObjectToWorld.Mat3().Mul3x1(pos)
	pos = core.QuatRotateVector(pos, p.SelectionRot)
	pos = p.WorldToObject.Mat3().Mul3x1(pos).Add(p.SelectionCenter)
	storePosF32(inv.buf[SlotPos], idx, pos)

	stride := uint32(inv.src.Format.OtherStride()) / 4
	rot := core.DecodeRotationWord(inv.buf[SlotOtherMouseDown][idx*stride])
	rot = core.QuatMul(p.SelectionRotLocal, rot)
	inv.buf[SlotOther][idx*stride] = core.EncodeRotation(rot)
}

func kScaleSelection(inv *invocation, idx, _ uint32) {
	p := inv.p
	if idx >= p.SplatCount || !bitSet(inv.buf[SlotSelected], idx) {
		return
	}
	pos := loadPosF32(inv.buf[SlotPosMouseDown], idx).Sub(p.SelectionCenter)
	pos = p.ObjectToWorld.Mat3().Mul3x1(pos)
	pos = mgl32.Vec3{pos[0] * p.SelectionDelta[0], pos[1] * p.SelectionDelta[1], pos[2] * p.SelectionDelta[2]}
	pos = p.WorldToObject.Mat3().Mul3x1(pos).Add(p.SelectionCenter)
	storePosF32(inv.buf[SlotPos], idx, pos)
}

func kExportData(inv *invocation, idx, _ uint32) {
	p := inv.p
	if idx >= p.SplatCount {
		return
	}
	sp := inv.src.Load(idx)
	skip := inv.deleted(idx) || inv.cut(sp.Pos)
	if p.CopyFlags&CopyFlagBake != 0 {
		core.BakeTransform(&sp, p.ObjectToWorld, p.CopyRot, p.CopyScale)
	}
	e := core.NewExportSplat(&sp, skip)
	var f [core.ExportFloats]float32
	e.Put(f[:])
	out := inv.buf[SlotExport][idx*core.ExportFloats:]
	for i, v := range f {
		out[i] = f2u(v)
	}
}

func kCopySplats(inv *invocation, idx, _ uint32) {
	p := inv.p
	if idx >= p.CopyCount {
		return
	}
	srcIdx := p.CopySrcStart + idx
	dstIdx := p.CopyDstStart + idx
	if srcIdx >= p.SplatCount || dstIdx >= p.CopyDstSize {
		return
	}
	sp := inv.src.Load(srcIdx)
	identity := p.CopyFlags&CopyFlagIdentity != 0
	if !identity {
		core.BakeTransform(&sp, p.CopyMatrix, p.CopyRot, p.CopyScale)
	}
	core.EncodeVeryHigh(&sp, dstIdx,
		inv.buf[SlotCopyDstPos], inv.buf[SlotCopyDstOther], inv.buf[SlotCopyDstSH], inv.buf[SlotCopyDstColor],
		inv.src.RotationWord(srcIdx), identity)
	if inv.deleted(srcIdx) {
		atomic.OrUint32(&inv.buf[SlotCopyDstDeleted][dstIdx>>5], 1<<(dstIdx&31))
	}
}
