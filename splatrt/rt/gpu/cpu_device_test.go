package gpu

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/core"
)

type testStore struct {
	dev      *CPUDevice
	asset    *core.Asset
	bind     Bindings
	selected Buffer
	deleted  Buffer
	words    int
}

func newBuf(t *testing.T, d Device, label string, data []uint32) Buffer {
	t.Helper()
	b, err := d.NewBuffer(label, max(len(data), 1))
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, d.Write(b, 0, data))
	}
	return b
}

func newTestStore(t *testing.T, splats []core.Splat, f core.Format) *testStore {
	t.Helper()
	a, err := core.BuildAsset("test", splats, f)
	require.NoError(t, err)
	d := NewCPUDevice(4, nil)
	src := core.SourceFromAsset(a)
	s := &testStore{dev: d, asset: a, words: (len(splats) + 31) / 32}
	s.bind.Set(SlotPos, newBuf(t, d, "pos", src.Pos)).
		Set(SlotOther, newBuf(t, d, "other", src.Other)).
		Set(SlotSH, newBuf(t, d, "sh", src.SH)).
		Set(SlotColor, newBuf(t, d, "color", src.Color)).
		Set(SlotChunks, newBuf(t, d, "chunks", core.ChunkWords(a.ChunkData)))
	s.selected = newBuf(t, d, "selected", make([]uint32, s.words))
	s.deleted = newBuf(t, d, "deleted", make([]uint32, s.words))
	s.bind.Set(SlotSelected, s.selected).Set(SlotSelectedAtomic, s.selected).
		Set(SlotDeleted, s.deleted).
		Set(SlotCutouts, newBuf(t, d, "cutouts", core.CutoutWordsFor(nil, mgl32.Ident4())))
	return s
}

func (s *testStore) params() *Params {
	return &Params{
		ObjectToWorld: mgl32.Ident4(),
		WorldToObject: mgl32.Ident4(),
		SplatCount:    uint32(s.asset.SplatCount),
		SplatFormat:   s.asset.Format.Word(),
		ChunkCount:    uint32(len(s.asset.ChunkData)),
		BufferSize:    uint32(s.words),
		BitsValid:     true,
		SplatScale:    1,
		OpacityScale:  1,
		SHOrder:       3,
	}
}

func read(t *testing.T, d Device, b Buffer) []uint32 {
	t.Helper()
	out, err := d.Read(b, 0, b.Words())
	require.NoError(t, err)
	return out
}

func TestCPUDeviceBufferOps(t *testing.T) {
	d := NewCPUDevice(2, nil)
	a, err := d.NewBuffer("a", 4)
	require.NoError(t, err)
	b, err := d.NewBuffer("b", 2)
	require.NoError(t, err)

	require.NoError(t, d.Write(a, 1, []uint32{7, 8, 9}))
	assert.Error(t, d.Write(a, 2, []uint32{1, 2, 3}))
	require.NoError(t, d.Copy(a, b))
	assert.Equal(t, []uint32{0, 7}, read(t, d, b))

	got, err := d.Read(a, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{8, 9}, got)
	_, err = d.Read(a, 3, 2)
	assert.Error(t, err)

	require.NoError(t, d.Clear(a))
	assert.Equal(t, []uint32{0, 0, 0, 0}, read(t, d, a))

	_, err = d.NewBuffer("empty", 0)
	assert.Error(t, err)

	b.Release()
	assert.Error(t, d.Copy(a, b))

	d.Release()
	_, err = d.NewBuffer("late", 1)
	assert.ErrorIs(t, err, ErrDeviceReleased)
	assert.False(t, d.NewSorter().Valid())
}

func TestCPUDeviceUnboundSlot(t *testing.T) {
	d := NewCPUDevice(1, nil)
	var b Bindings
	err := d.Dispatch(KernelSetIndices, &Params{SplatCount: 1}, &b, Groups(1, 1))
	assert.ErrorIs(t, err, ErrUnboundSlot)
}

func TestCPUDeviceRejectsUnknownKernel(t *testing.T) {
	d := NewCPUDevice(1, nil)
	for _, k := range []Kernel{-1, kernelCount, kernelCount + 7} {
		err := d.Dispatch(k, &Params{}, &Bindings{}, Groups(1, 1))
		assert.Error(t, err, "kernel %d", int(k))
	}
}

func TestCalcDistancesFollowsOrder(t *testing.T) {
	s := newTestStore(t, core.LineSplats(300), core.VeryHigh)
	d := s.dev
	n := 300
	orderL := newBuf(t, d, "order_l", make([]uint32, n))
	distL := newBuf(t, d, "dist_l", make([]uint32, n))
	s.bind.Set(SlotOrderL, orderL).Set(SlotOrderR, orderL).Set(SlotDistL, distL).Set(SlotDistR, distL)

	p := s.params()
	// looking down -X from x=1000: splat i is at depth -(1000-i)
	p.EyeView[0] = mgl32.LookAtV(mgl32.Vec3{1000, 0, 0}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	require.NoError(t, d.Dispatch(KernelSetIndices, p, &s.bind, Groups(uint32(n), 1)))
	require.NoError(t, d.Dispatch(KernelCalcDistances, p, &s.bind, Groups(uint32(n), 1)))

	order := read(t, d, orderL)
	dist := read(t, d, distL)
	for i := 0; i < n; i++ {
		assert.Equal(t, uint32(i), order[i])
		assert.InDelta(t, float32(i)-1000, core.SortableUintToFloat(dist[i]), 1e-3)
	}
	// farther splats have smaller keys
	assert.Less(t, dist[0], dist[n-1])
}

func TestCalcViewDataMarksDeletedAndCut(t *testing.T) {
	s := newTestStore(t, core.LineSplats(4), core.VeryHigh)
	d := s.dev
	viewL := newBuf(t, d, "view_l", make([]uint32, 4*core.ViewDataWords))
	s.bind.Set(SlotViewL, viewL).Set(SlotViewR, viewL)
	require.NoError(t, d.Write(s.deleted, 0, []uint32{1 << 1}))

	cut := core.NewCutout(core.CutoutBox, mgl32.Vec3{3, 0, 0}, mgl32.Vec3{0.5, 0.5, 0.5})
	cut.Invert = true
	s.bind.Set(SlotCutouts, newBuf(t, d, "cutouts", core.CutoutWordsFor([]core.Cutout{cut}, mgl32.Ident4())))

	cam := core.NewPerspectiveCamera(mgl32.Vec3{1.5, 0, 10}, mgl32.Vec3{1.5, 0, 0}, mgl32.Vec3{0, 1, 0}, 60, 400, 300, 0.1, 100)
	p := s.params()
	p.EyeView[0], p.EyeProj[0], p.EyeCamPos[0] = cam.Eyes[0].View, cam.Eyes[0].Proj, cam.Eyes[0].Position
	p.ScreenParams = cam.ScreenParams()
	p.CutoutCount = 1
	require.NoError(t, d.Dispatch(KernelCalcViewData, p, &s.bind, Groups(4, 1)))

	words := read(t, d, viewL)
	visible := make([]bool, 4)
	for i := range visible {
		v := core.ViewDataFromWords(words[i*core.ViewDataWords:])
		visible[i] = v.Visible()
	}
	assert.Equal(t, []bool{true, false, true, false}, visible)
}

func TestSelectAllAndInvertSkipDeleted(t *testing.T) {
	s := newTestStore(t, core.LineSplats(40), core.VeryHigh)
	d := s.dev
	s.bind.Set(SlotDst, s.selected)
	require.NoError(t, d.Write(s.deleted, 0, []uint32{0b1010, 1 << 3}))

	p := s.params()
	g := Groups(uint32(s.words), 1)
	require.NoError(t, d.Dispatch(KernelSelectAll, p, &s.bind, g))
	assert.Equal(t, []uint32{^uint32(0b1010), 0xFF &^ (1 << 3)}, read(t, d, s.selected))

	require.NoError(t, d.Dispatch(KernelInvertSelection, p, &s.bind, g))
	assert.Equal(t, []uint32{0, 0}, read(t, d, s.selected))

	require.NoError(t, d.Dispatch(KernelInvertSelection, p, &s.bind, g))
	assert.Equal(t, []uint32{^uint32(0b1010), 0xFF &^ (1 << 3)}, read(t, d, s.selected))

	require.NoError(t, d.Dispatch(KernelClearBuffer, p, &s.bind, g))
	assert.Equal(t, []uint32{0, 0}, read(t, d, s.selected))
}

func TestOrBuffers(t *testing.T) {
	d := NewCPUDevice(2, nil)
	var b Bindings
	src := newBuf(t, d, "src", []uint32{1, 2, 4})
	dst := newBuf(t, d, "dst", []uint32{8, 8, 8})
	b.Set(SlotSrc, src).Set(SlotDst, dst)
	require.NoError(t, d.Dispatch(KernelOrBuffers, &Params{BufferSize: 3}, &b, Groups(3, 1)))
	assert.Equal(t, []uint32{9, 10, 12}, read(t, d, dst))
}

func TestUpdateEditDataCounts(t *testing.T) {
	s := newTestStore(t, core.LineSplats(70), core.VeryHigh)
	d := s.dev
	counts := newBuf(t, d, "counts", make([]uint32, core.CountsWords))
	s.bind.Set(SlotDst, counts).Set(SlotDstAtomic, counts)

	// select 5..9 and 64, delete 9 and 65
	require.NoError(t, d.Write(s.selected, 0, []uint32{0b11111 << 5, 0, 1}))
	require.NoError(t, d.Write(s.deleted, 0, []uint32{1 << 9, 0, 1 << 1}))

	p := s.params()
	require.NoError(t, d.Dispatch(KernelInitEditData, p, &s.bind, Groups(1, 1)))
	require.NoError(t, d.Dispatch(KernelUpdateEditData, p, &s.bind, Groups(uint32(s.words), 1)))

	c := core.DecodeEditCounts(read(t, d, counts), 0.1, 0.01)
	assert.Equal(t, uint32(5), c.Selected)
	assert.Equal(t, uint32(2), c.Deleted)
	assert.Equal(t, uint32(0), c.Cut)
	assert.Equal(t, mgl32.Vec3{5, 0, 0}, c.Bounds.Min)
	assert.Equal(t, mgl32.Vec3{64, 0, 0}, c.Bounds.Max)
}

func TestUpdateEditDataBoundsIncludeCutSplats(t *testing.T) {
	s := newTestStore(t, core.LineSplats(10), core.VeryHigh)
	d := s.dev
	counts := newBuf(t, d, "counts", make([]uint32, core.CountsWords))
	s.bind.Set(SlotDst, counts).Set(SlotDstAtomic, counts)
	cut := core.NewCutout(core.CutoutBox, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{1.5, 1, 1})
	s.bind.Set(SlotCutouts, newBuf(t, d, "cutouts", core.CutoutWordsFor([]core.Cutout{cut}, mgl32.Ident4())))
	require.NoError(t, d.Write(s.selected, 0, []uint32{0x3FF}))

	p := s.params()
	p.CutoutCount = 1
	require.NoError(t, d.Dispatch(KernelInitEditData, p, &s.bind, Groups(1, 1)))
	require.NoError(t, d.Dispatch(KernelUpdateEditData, p, &s.bind, Groups(uint32(s.words), 1)))

	c := core.DecodeEditCounts(read(t, d, counts), 0.1, 0.01)
	assert.Equal(t, uint32(10), c.Selected)
	assert.Equal(t, uint32(7), c.Cut)
	assert.Equal(t, float32(0), c.Bounds.Min[0])
	assert.Equal(t, float32(9), c.Bounds.Max[0])
}

func TestSelectionUpdateRect(t *testing.T) {
	s := newTestStore(t, core.LineSplats(10), core.VeryHigh)
	d := s.dev
	cam := core.NewPerspectiveCamera(mgl32.Vec3{4.5, 0, 20}, mgl32.Vec3{4.5, 0, 0}, mgl32.Vec3{0, 1, 0}, 60, 800, 600, 0.1, 100)

	p := s.params()
	p.EyeView[0], p.EyeProj[0] = cam.Eyes[0].View, cam.Eyes[0].Proj
	p.ScreenParams = cam.ScreenParams()
	p.SelectionMode = SelectionAdd

	lo, _ := cam.WorldToPixel(mgl32.Vec3{1.5, 0, 0})
	hi, _ := cam.WorldToPixel(mgl32.Vec3{4.5, 0, 0})
	p.SelectionRect = mgl32.Vec4{lo[0], lo[1] - 5, hi[0], hi[1] + 5}
	require.NoError(t, d.Dispatch(KernelSelectionUpdate, p, &s.bind, Groups(10, 1)))
	assert.Equal(t, []uint32{0b11100}, read(t, d, s.selected))

	// subtract only the middle one
	m, _ := cam.WorldToPixel(mgl32.Vec3{3, 0, 0})
	p.SelectionMode = SelectionSubtract
	p.SelectionRect = mgl32.Vec4{m[0] - 1, m[1] - 1, m[0] + 1, m[1] + 1}
	require.NoError(t, d.Dispatch(KernelSelectionUpdate, p, &s.bind, Groups(10, 1)))
	assert.Equal(t, []uint32{0b10100}, read(t, d, s.selected))
}

func TestTranslateAndScaleSelection(t *testing.T) {
	s := newTestStore(t, core.LineSplats(4), core.VeryHigh)
	d := s.dev
	src := core.SourceFromAsset(s.asset)
	snapshot := newBuf(t, d, "pos_mouse_down", src.Pos)
	s.bind.Set(SlotPosMouseDown, snapshot)
	require.NoError(t, d.Write(s.selected, 0, []uint32{0b0110}))

	p := s.params()
	p.SelectionDelta = mgl32.Vec3{0, 1, 0}
	require.NoError(t, d.Dispatch(KernelTranslateSelection, p, &s.bind, Groups(4, 1)))
	// applying twice from the snapshot does not accumulate
	require.NoError(t, d.Dispatch(KernelTranslateSelection, p, &s.bind, Groups(4, 1)))

	pos := read(t, d, s.bind[SlotPos])
	for i, want := range []mgl32.Vec3{{0, 0, 0}, {1, 1, 0}, {2, 1, 0}, {3, 0, 0}} {
		assert.Equal(t, want, loadPosF32(pos, uint32(i)), "splat %d", i)
	}

	p.SelectionCenter = mgl32.Vec3{1.5, 0, 0}
	p.SelectionDelta = mgl32.Vec3{3, 1, 1}
	require.NoError(t, d.Dispatch(KernelScaleSelection, p, &s.bind, Groups(4, 1)))
	pos = read(t, d, s.bind[SlotPos])
	assert.Equal(t, mgl32.Vec3{3, 0, 0}, loadPosF32(pos, 2))
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, loadPosF32(pos, 1))
}

func TestRotateSelectionTurnsOrientation(t *testing.T) {
	s := newTestStore(t, core.LineSplats(2), core.VeryHigh)
	d := s.dev
	src := core.SourceFromAsset(s.asset)
	s.bind.Set(SlotPosMouseDown, newBuf(t, d, "pos_mouse_down", src.Pos)).
		Set(SlotOtherMouseDown, newBuf(t, d, "other_mouse_down", src.Other))
	require.NoError(t, d.Write(s.selected, 0, []uint32{0b10}))

	q := core.QuatToVec4(mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1}))
	p := s.params()
	p.SelectionRot, p.SelectionRotLocal = q, q
	require.NoError(t, d.Dispatch(KernelRotateSelection, p, &s.bind, Groups(2, 1)))

	pos := read(t, d, s.bind[SlotPos])
	assertVec3Near(t, mgl32.Vec3{0, 1, 0}, loadPosF32(pos, 1))
	other := read(t, d, s.bind[SlotOther])
	rot := core.DecodeRotationWord(other[core.OtherWordsVeryHigh])
	if rot[3] < 0 {
		rot = rot.Mul(-1)
	}
	assert.InDelta(t, q[2], rot[2], 2e-3)
	assert.InDelta(t, q[3], rot[3], 2e-3)
	assert.Equal(t, src.Other[0], other[0], "unselected splat keeps its rotation")
}

func assertVec3Near(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	for i := 0; i < 3; i++ {
		assert.InDelta(t, want[i], got[i], 1e-5, "component %d of %v", i, got)
	}
}

type copyTarget struct {
	pos, other, sh, color, deleted Buffer
}

func newCopyTarget(t *testing.T, d Device, n int) copyTarget {
	t.Helper()
	w, h := core.CalcTextureSize(n)
	return copyTarget{
		pos:     newBuf(t, d, "dst_pos", make([]uint32, n*core.PosWordsVeryHigh)),
		other:   newBuf(t, d, "dst_other", make([]uint32, n*core.OtherWordsVeryHigh)),
		sh:      newBuf(t, d, "dst_sh", make([]uint32, n*core.SHWordsVeryHigh)),
		color:   newBuf(t, d, "dst_color", make([]uint32, w*h*core.ColorWordsVeryHigh)),
		deleted: newBuf(t, d, "dst_deleted", make([]uint32, (n+31)/32)),
	}
}

func (c copyTarget) bind(b *Bindings) {
	b.Set(SlotCopyDstPos, c.pos).Set(SlotCopyDstOther, c.other).Set(SlotCopyDstSH, c.sh).
		Set(SlotCopyDstColor, c.color).Set(SlotCopyDstDeleted, c.deleted)
}

func (c copyTarget) source(t *testing.T, d Device, n int) *core.SplatSource {
	t.Helper()
	return &core.SplatSource{
		Format: core.VeryHigh,
		Count:  uint32(n),
		Pos:    read(t, d, c.pos),
		Other:  read(t, d, c.other),
		SH:     read(t, d, c.sh),
		Color:  read(t, d, c.color),
	}
}

func TestCopySplatsIdentityKeepsData(t *testing.T) {
	splats := core.SyntheticSplats(40, 3, rand.New(rand.NewSource(3)))
	s := newTestStore(t, splats, core.VeryHigh)
	d := s.dev
	dst := newCopyTarget(t, d, 80)
	dst.bind(&s.bind)
	require.NoError(t, d.Write(s.deleted, 0, []uint32{1 << 7}))

	p := s.params()
	p.CopySrcStart, p.CopyDstStart, p.CopyCount, p.CopyDstSize = 0, 20, 40, 80
	p.CopyFlags = CopyFlagIdentity
	require.NoError(t, d.Dispatch(KernelCopySplats, p, &s.bind, Groups(40, 1)))

	src := core.SourceFromAsset(s.asset)
	out := dst.source(t, d, 80)
	for i := uint32(0); i < 40; i++ {
		assert.Equal(t, src.Load(i), out.Load(i+20), "splat %d", i)
		assert.Equal(t, src.RotationWord(i), out.RotationWord(i+20))
	}
	assert.Equal(t, []uint32{1 << 27, 0, 0}, read(t, d, dst.deleted))
}

func TestCopySplatsBakesMatrix(t *testing.T) {
	splats := core.LineSplats(3)
	s := newTestStore(t, splats, core.VeryHigh)
	d := s.dev
	dst := newCopyTarget(t, d, 3)
	dst.bind(&s.bind)

	m := mgl32.Translate3D(0, 5, 0).Mul4(mgl32.Scale3D(2, 2, 2))
	rot, scale := core.DecomposeRotationScale(m)
	p := s.params()
	p.CopyCount, p.CopyDstSize = 3, 3
	p.CopyMatrix, p.CopyRot, p.CopyScale = m, core.QuatToVec4(rot), scale
	require.NoError(t, d.Dispatch(KernelCopySplats, p, &s.bind, Groups(3, 1)))

	out := dst.source(t, d, 3)
	for i := uint32(0); i < 3; i++ {
		sp := out.Load(i)
		assertVec3Near(t, mgl32.Vec3{2 * float32(i), 5, 0}, sp.Pos)
		assertVec3Near(t, mgl32.Vec3{0.1, 0.1, 0.1}, sp.Scale)
	}
}

func TestExportDataFlagsSkippedSplats(t *testing.T) {
	f := core.Format{Pos: core.VectorNorm11, Scale: core.VectorNorm6, SH: core.SHNorm6, Color: core.ColorNorm8x4}
	s := newTestStore(t, core.LineSplats(5), f)
	d := s.dev
	export := newBuf(t, d, "export", make([]uint32, 5*core.ExportFloats))
	s.bind.Set(SlotExport, export)
	require.NoError(t, d.Write(s.deleted, 0, []uint32{1 << 2}))

	p := s.params()
	p.ObjectToWorld = mgl32.Translate3D(0, 0, 1)
	p.CopyRot, p.CopyScale = mgl32.Vec4{0, 0, 0, 1}, mgl32.Vec3{1, 1, 1}
	p.CopyFlags = CopyFlagBake
	require.NoError(t, d.Dispatch(KernelExportData, p, &s.bind, Groups(5, 1)))

	f32 := core.WordsToF32(read(t, d, export))
	for i := 0; i < 5; i++ {
		e := core.ExportSplatFromFloats(f32[i*core.ExportFloats:])
		assert.Equal(t, i == 2, e.Skipped(), "splat %d", i)
		for k, want := range []float32{float32(i), 0, 1} {
			assert.InDelta(t, want, e.Pos[k], 0.01, "splat %d axis %d", i, k)
		}
	}
}

func TestNewDeviceBackends(t *testing.T) {
	d, err := NewDevice(gsplat.DeviceConfig{Backend: gsplat.BackendCPU, Workers: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, "cpu(3)", d.Name())
	d.Release()

	_, err = NewDevice(gsplat.DeviceConfig{Backend: "vulkan"}, nil)
	assert.Error(t, err)
}
