package splat

import (
	"math/rand"
	"runtime"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/gpu"
)

var quantized = core.Format{Pos: core.VectorNorm11, Scale: core.VectorNorm11, SH: core.SHNorm6, Color: core.ColorNorm8x4}

func newTestRendererOn(t *testing.T, dev gpu.Device, name string, splats []core.Splat, f core.Format) *Renderer {
	t.Helper()
	a, err := core.BuildAsset(name, splats, f)
	require.NoError(t, err)
	r := NewRenderer(dev, gsplat.DefaultConfig(), nil)
	r.SetAsset(a)
	require.True(t, r.HasValidRenderSetup())
	t.Cleanup(r.Release)
	return r
}

func newTestRenderer(t *testing.T, splats []core.Splat, f core.Format) *Renderer {
	t.Helper()
	return newTestRendererOn(t, gpu.NewCPUDevice(4, nil), "test", splats, f)
}

// lineCamera looks at the LineSplats row from +Z.
func lineCamera() *core.Camera {
	return core.NewPerspectiveCamera(mgl32.Vec3{4.5, 0, 20}, mgl32.Vec3{4.5, 0, 0}, mgl32.Vec3{0, 1, 0}, 60, 800, 600, 0.1, 100)
}

// selectRange rect selects the LineSplats with x in [from, to].
func selectRange(t *testing.T, r *Renderer, cam *core.Camera, from, to float32, subtract bool) {
	t.Helper()
	lo, ok := cam.WorldToPixel(mgl32.Vec3{from - 0.5, 0, 0})
	require.True(t, ok)
	hi, ok := cam.WorldToPixel(mgl32.Vec3{to + 0.5, 0, 0})
	require.True(t, ok)
	require.NoError(t, r.StoreSelectionSnapshot())
	require.NoError(t, r.RectSelect(mgl32.Vec2{lo[0], lo[1] - 5}, mgl32.Vec2{hi[0], hi[1] + 5}, cam, subtract))
}

func readPositions(t *testing.T, r *Renderer) []mgl32.Vec3 {
	t.Helper()
	require.Equal(t, core.VeryHigh, r.store.format)
	w, err := r.dev.Read(r.store.pos, 0, r.store.count*core.PosWordsVeryHigh)
	require.NoError(t, err)
	f := core.WordsToF32(w)
	out := make([]mgl32.Vec3, r.store.count)
	for i := range out {
		out[i] = mgl32.Vec3{f[i*3], f[i*3+1], f[i*3+2]}
	}
	return out
}

func TestRendererWithoutAssetIsNoop(t *testing.T) {
	r := NewRenderer(gpu.NewCPUDevice(1, nil), nil, nil)
	cam := lineCamera()
	assert.False(t, r.HasValidAsset())
	assert.False(t, r.HasValidRenderSetup())
	assert.NoError(t, r.SortPoints(cam))
	assert.NoError(t, r.CalcViewData(cam))
	assert.NoError(t, r.SelectAll())
	assert.NoError(t, r.TranslateSelection(mgl32.Vec3{1, 0, 0}))
	assert.Equal(t, 0, r.SplatCount())
	_, err := r.DrawOrder(0)
	assert.ErrorIs(t, err, ErrNoStore)
	assert.ErrorIs(t, r.Resize(4), ErrNoStore)
}

func TestInvalidAssetLeavesRendererEmpty(t *testing.T) {
	a, err := core.BuildAsset("bad", core.LineSplats(4), core.VeryHigh)
	require.NoError(t, err)
	a.FormatVersion = 1
	r := NewRenderer(gpu.NewCPUDevice(1, nil), nil, nil)
	r.SetAsset(a)
	assert.False(t, r.HasValidAsset())
	assert.False(t, r.HasValidRenderSetup())
	_, ok := r.DrawCall(0)
	assert.False(t, ok)
}

func TestAssetHashChangeRecreatesStore(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(4), core.VeryHigh)
	require.NoError(t, r.SelectAll())
	first := r.Store()

	r.Asset().DataHash[0] ^= 0xFF
	require.True(t, r.HasValidRenderSetup())
	assert.NotSame(t, first, r.Store())
	assert.Nil(t, r.edit)
}

// assertBackToFront checks that the draw order of eye visits splats from the
// most negative view depth to the least negative.
func assertBackToFront(t *testing.T, r *Renderer, cam *core.Camera, eye int, pos func(i int) mgl32.Vec3) {
	t.Helper()
	order, err := r.DrawOrder(eye)
	require.NoError(t, err)
	mv := cam.Eyes[eye].View.Mul4(r.Transform.ObjectToWorld())
	seen := make([]bool, len(order))
	prev := float32(-1e38)
	for i, idx := range order {
		require.False(t, seen[idx], "index %d repeated", idx)
		seen[idx] = true
		z := mv.Mul4x1(pos(int(idx)).Vec4(1)).Z()
		require.LessOrEqual(t, prev, z, "at %d", i)
		prev = z
	}
}

func TestSortPointsBackToFront(t *testing.T) {
	for _, n := range []int{1, 1000} {
		splats := core.SyntheticSplats(n, 5, rand.New(rand.NewSource(int64(n))))
		r := newTestRenderer(t, splats, core.VeryHigh)
		r.Transform.Position = mgl32.Vec3{1, 0, -3}
		cam := core.NewStereoCamera(mgl32.Vec3{2, 3, 15}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0}, 0.065, 60, 640, 480, 0.1, 100)

		require.NoError(t, r.SortPoints(cam))
		for eye := 0; eye < 2; eye++ {
			assertBackToFront(t, r, cam, eye, func(i int) mgl32.Vec3 { return splats[i].Pos })
		}
	}
}

func TestSortPointsQuantized(t *testing.T) {
	splats := core.SyntheticSplats(600, 3, rand.New(rand.NewSource(5)))
	r := newTestRenderer(t, splats, quantized)
	src := core.SourceFromAsset(r.Asset())
	cam := core.NewPerspectiveCamera(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, 60, 640, 480, 0.1, 100)

	require.NoError(t, r.SortPoints(cam))
	assertBackToFront(t, r, cam, 0, func(i int) mgl32.Vec3 { return src.LoadPos(uint32(i)) })
}

func TestSortPointsMillion(t *testing.T) {
	if testing.Short() {
		t.Skip("large sort")
	}
	const n = 1_000_000
	rng := rand.New(rand.NewSource(1))
	words := make([]uint32, n*3)
	pos := make([]mgl32.Vec3, n)
	for i := range pos {
		pos[i] = mgl32.Vec3{rng.Float32()*100 - 50, rng.Float32()*100 - 50, rng.Float32()*100 - 50}
		copy(words[i*3:], core.F32ToWords(pos[i][:]))
	}

	dev := gpu.NewCPUDevice(runtime.GOMAXPROCS(0), nil)
	r := NewRenderer(dev, nil, nil)
	defer r.Release()
	posBuf, err := dev.NewBuffer("pos", len(words))
	require.NoError(t, err)
	require.NoError(t, dev.Write(posBuf, 0, words))
	chunks, err := dev.NewBuffer("chunks", core.ChunkInfoWords)
	require.NoError(t, err)
	// distances only need positions
	r.store = &Store{dev: dev, name: "million", count: n, format: core.VeryHigh, pos: posBuf, chunks: chunks}
	r.eyes, err = newEyes(dev, r.sorter, "million", n)
	require.NoError(t, err)

	cam := core.NewPerspectiveCamera(mgl32.Vec3{0, 0, 200}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, 60, 1280, 720, 0.1, 1000)
	require.NoError(t, r.SortPoints(cam))
	assertBackToFront(t, r, cam, 0, func(i int) mgl32.Vec3 { return pos[i] })
}

func TestSortNoopWithoutSorter(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(8), core.VeryHigh)
	r.sorter = gpu.InvalidSorter()
	require.NoError(t, r.SortPoints(lineCamera()))
	order, err := r.DrawOrder(0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 6, 7}, order)
}

func TestPreviewCameraSkipsWork(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(4), core.VeryHigh)
	cam := lineCamera()
	cam.Category = core.CameraPreview
	require.NoError(t, r.CalcViewData(cam))
	require.NoError(t, r.SortPoints(cam))
	view, err := r.ViewData(0)
	require.NoError(t, err)
	for _, v := range view {
		assert.Equal(t, core.ViewData{}, v)
	}
}

func TestCalcViewDataHidesDeletedSplats(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(10), core.VeryHigh)
	cam := lineCamera()
	selectRange(t, r, cam, 2, 3, false)
	require.NoError(t, r.DeleteSelected())
	require.NoError(t, r.CalcViewData(cam))

	view, err := r.ViewData(0)
	require.NoError(t, err)
	for i, v := range view {
		assert.Equal(t, i != 2 && i != 3, v.Visible(), "splat %d", i)
	}
}

func TestSelectAllScenario(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(10), core.VeryHigh)
	require.NoError(t, r.SelectAll())

	assert.Equal(t, 10, r.SelectedCount())
	b, ok := r.SelectionBounds()
	require.True(t, ok)
	assert.InDeltaSlice(t, []float32{0, 0, 0}, b.Min[:], 1e-5)
	assert.InDeltaSlice(t, []float32{9, 0, 0}, b.Max[:], 1e-5)
}

func TestTranslateScenario(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(10), core.VeryHigh)
	selectRange(t, r, lineCamera(), 0, 4, false)
	require.Equal(t, 5, r.SelectedCount())

	require.NoError(t, r.StorePositionSnapshot())
	require.NoError(t, r.TranslateSelection(mgl32.Vec3{0.5, 0, 0}))
	// relative to the snapshot, not cumulative
	require.NoError(t, r.TranslateSelection(mgl32.Vec3{1, 0, 0}))
	assert.True(t, r.Modified())

	pos := readPositions(t, r)
	for i := 0; i < 5; i++ {
		assert.Equal(t, mgl32.Vec3{float32(i + 1), 0, 0}, pos[i], "splat %d", i)
	}
	for i := 5; i < 10; i++ {
		assert.Equal(t, mgl32.Vec3{float32(i), 0, 0}, pos[i], "splat %d", i)
	}
}

func TestDeleteScenario(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(10), core.VeryHigh)
	selectRange(t, r, lineCamera(), 2, 3, false)
	require.NoError(t, r.DeleteSelected())
	assert.True(t, r.Modified())
	assert.Equal(t, 0, r.SelectedCount())

	require.NoError(t, r.SelectAll())
	assert.Equal(t, 8, r.SelectedCount())
	assert.Equal(t, 2, r.DeletedCount())

	require.NoError(t, r.InvertSelection())
	assert.Equal(t, 0, r.SelectedCount())
}

func TestTransformWithoutSnapshotIsNoop(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(4), core.VeryHigh)
	require.NoError(t, r.SelectAll())
	require.NoError(t, r.TranslateSelection(mgl32.Vec3{1, 0, 0}))
	require.NoError(t, r.RotateSelection(mgl32.Vec3{}, mgl32.QuatRotate(1, mgl32.Vec3{0, 1, 0})))
	require.NoError(t, r.ScaleSelection(mgl32.Vec3{}, mgl32.Vec3{2, 2, 2}))
	assert.False(t, r.Modified())
	assert.Equal(t, mgl32.Vec3{3, 0, 0}, readPositions(t, r)[3])
}

func TestTransformNeedsEditableData(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(4), quantized)
	require.NoError(t, r.SelectAll())
	require.NoError(t, r.StorePositionSnapshot())
	require.NoError(t, r.TranslateSelection(mgl32.Vec3{1, 0, 0}))
	assert.False(t, r.Modified())
}

func TestRotateAndScaleSelection(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(3), core.VeryHigh)
	require.NoError(t, r.SelectAll())
	require.NoError(t, r.StorePositionSnapshot())
	require.NoError(t, r.StoreOtherSnapshot())

	require.NoError(t, r.RotateSelection(mgl32.Vec3{1, 0, 0}, mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})))
	pos := readPositions(t, r)
	for i, want := range []mgl32.Vec3{{1, 0, 1}, {1, 0, 0}, {1, 0, -1}} {
		assert.InDeltaSlice(t, want[:], pos[i][:], 1e-5, "splat %d", i)
	}

	require.NoError(t, r.ScaleSelection(mgl32.Vec3{1, 0, 0}, mgl32.Vec3{2, 1, 1}))
	pos = readPositions(t, r)
	for i, want := range []mgl32.Vec3{{-1, 0, 0}, {1, 0, 0}, {3, 0, 0}} {
		assert.InDeltaSlice(t, want[:], pos[i][:], 1e-5, "splat %d", i)
	}
}

func TestTransformRefreshesBounds(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(10), core.VeryHigh)
	require.NoError(t, r.SelectAll())
	require.NoError(t, r.StorePositionSnapshot())

	require.NoError(t, r.TranslateSelection(mgl32.Vec3{0, 5, 0}))
	b, ok := r.SelectionBounds()
	require.True(t, ok)
	assert.InDelta(t, 5, b.Min[1], 1e-5)
	assert.InDelta(t, 5, b.Max[1], 1e-5)
	assert.InDelta(t, 9, b.Max[0], 1e-5)

	require.NoError(t, r.ScaleSelection(mgl32.Vec3{}, mgl32.Vec3{2, 1, 1}))
	b, ok = r.SelectionBounds()
	require.True(t, ok)
	assert.InDelta(t, 18, b.Max[0], 1e-5)
	assert.InDelta(t, 0, b.Min[1], 1e-5)
}

func TestRectSelectIdempotent(t *testing.T) {
	splats := core.SyntheticSplats(2000, 4, rand.New(rand.NewSource(3)))
	r := newTestRenderer(t, splats, core.VeryHigh)
	cam := core.NewPerspectiveCamera(mgl32.Vec3{0, 0, 12}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, 60, 800, 600, 0.1, 100)
	require.NoError(t, r.StoreSelectionSnapshot())

	require.NoError(t, r.RectSelect(mgl32.Vec2{300, 200}, mgl32.Vec2{500, 420}, cam, false))
	first, err := r.SelectionMask()
	require.NoError(t, err)
	require.NoError(t, r.RectSelect(mgl32.Vec2{300, 200}, mgl32.Vec2{500, 420}, cam, false))
	second, err := r.SelectionMask()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Greater(t, r.SelectedCount(), 0)

	// a smaller rect in the same drag shrinks the selection again
	require.NoError(t, r.RectSelect(mgl32.Vec2{390, 290}, mgl32.Vec2{410, 310}, cam, false))
	assert.Less(t, r.SelectedCount(), int(popCount(first)))
}

func popCount(w []uint32) uint32 {
	var n uint32
	for _, v := range w {
		for ; v != 0; v &= v - 1 {
			n++
		}
	}
	return n
}

func TestDeletionMonotonic(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(32), core.VeryHigh)
	cam := core.NewPerspectiveCamera(mgl32.Vec3{15.5, 0, 40}, mgl32.Vec3{15.5, 0, 0}, mgl32.Vec3{0, 1, 0}, 60, 800, 600, 0.1, 100)
	rng := rand.New(rand.NewSource(11))
	prev := 0
	for i := 0; i < 20; i++ {
		from := float32(rng.Intn(32))
		selectRange(t, r, cam, from, from+float32(rng.Intn(4)), rng.Intn(4) == 0)
		if rng.Intn(3) == 0 {
			require.NoError(t, r.InvertSelection())
		}
		require.NoError(t, r.DeleteSelected())
		assert.GreaterOrEqual(t, r.DeletedCount(), prev)
		prev = r.DeletedCount()
	}
	mask, err := r.DeletedMask()
	require.NoError(t, err)
	assert.Equal(t, uint32(prev), popCount(mask))
}

func TestSelectionBoundsContainSelection(t *testing.T) {
	splats := core.SyntheticSplats(500, 4, rand.New(rand.NewSource(8)))
	r := newTestRenderer(t, splats, core.VeryHigh)
	r.Transform.Position = mgl32.Vec3{3, -1, 2}
	r.Transform.Rotation = mgl32.QuatRotate(0.7, mgl32.Vec3{1, 1, 0}.Normalize())
	r.Transform.Scale = mgl32.Vec3{2, 2, 2}
	cam := core.NewPerspectiveCamera(mgl32.Vec3{0, 0, 30}, mgl32.Vec3{3, -1, 2}, mgl32.Vec3{0, 1, 0}, 60, 800, 600, 0.1, 100)

	require.NoError(t, r.StoreSelectionSnapshot())
	require.NoError(t, r.RectSelect(mgl32.Vec2{250, 150}, mgl32.Vec2{450, 400}, cam, false))
	require.Greater(t, r.SelectedCount(), 0)
	b, ok := r.SelectionBounds()
	require.True(t, ok)

	mask, err := r.SelectionMask()
	require.NoError(t, err)
	o2w := r.Transform.ObjectToWorld()
	for i, sp := range splats {
		if mask[i>>5]&(1<<(i&31)) == 0 {
			continue
		}
		p := o2w.Mul4x1(sp.Pos.Vec4(1)).Vec3()
		assert.True(t, b.Contains(p, 1e-3), "splat %d at %v outside %v", i, p, b)
	}

	require.NoError(t, r.DeselectAll())
	assert.Equal(t, 0, r.SelectedCount())
	_, ok = r.SelectionBounds()
	assert.False(t, ok)
}

func TestDegenerateBoundsInflate(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(10), core.VeryHigh)
	selectRange(t, r, lineCamera(), 4, 4, false)
	require.Equal(t, 1, r.SelectedCount())
	b, ok := r.SelectionBounds()
	require.True(t, ok)
	assert.InDeltaSlice(t, []float32{3.9, -0.1, -0.1}, b.Min[:], 1e-5)
	assert.InDeltaSlice(t, []float32{4.1, 0.1, 0.1}, b.Max[:], 1e-5)
}

func TestCutoutsCountAndHide(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(10), core.VeryHigh)
	r.Cutouts = []core.Cutout{core.NewCutout(core.CutoutBox, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{1.5, 1, 1})}
	require.NoError(t, r.SelectAll())
	assert.Equal(t, 7, r.CutCount())

	require.NoError(t, r.CalcViewData(lineCamera()))
	view, err := r.ViewData(0)
	require.NoError(t, err)
	for i, v := range view {
		assert.Equal(t, i <= 2, v.Visible(), "splat %d", i)
	}
	// cut splats keep their selection bit and stay inside the bounds
	b, ok := r.SelectionBounds()
	require.True(t, ok)
	assert.InDelta(t, 0, b.Min[0], 1e-5)
	assert.InDelta(t, 9, b.Max[0], 1e-5)
	for i := 0; i < 10; i++ {
		assert.True(t, b.Contains(mgl32.Vec3{float32(i), 0, 0}, 1e-4), "splat %d", i)
	}
}

func TestSelectionBoundsWhenEverythingIsCut(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(10), core.VeryHigh)
	cut := core.NewCutout(core.CutoutBox, mgl32.Vec3{50, 0, 0}, mgl32.Vec3{1, 1, 1})
	r.Cutouts = []core.Cutout{cut}
	require.NoError(t, r.SelectAll())
	assert.Equal(t, 10, r.CutCount())
	assert.Equal(t, 10, r.SelectedCount())

	b, ok := r.SelectionBounds()
	require.True(t, ok)
	assert.InDelta(t, 0, b.Min[0], 1e-5)
	assert.InDelta(t, 9, b.Max[0], 1e-5)
}

func TestResizeRoundTrip(t *testing.T) {
	const n = 100
	splats := core.SyntheticSplats(n, 3, rand.New(rand.NewSource(4)))
	r := newTestRenderer(t, splats, core.VeryHigh)
	selectRange(t, r, core.NewPerspectiveCamera(mgl32.Vec3{0, 0, 20}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, 60, 800, 600, 0.1, 100), -0.2, 0.2, false)
	require.NoError(t, r.DeleteSelected())
	deletedBefore, err := r.DeletedMask()
	require.NoError(t, err)
	src := core.SourceFromAsset(r.Asset())
	r.ClearModified()

	require.NoError(t, r.Resize(n+50))
	assert.Equal(t, n+50, r.SplatCount())
	assert.True(t, r.Modified())
	grown := readPositions(t, r)
	assert.Equal(t, mgl32.Vec3{}, grown[n+10])

	require.NoError(t, r.Resize(n))
	assert.Equal(t, n, r.SplatCount())
	s := r.Store()
	for _, blk := range []struct {
		buf  gpu.Buffer
		want []uint32
	}{
		{s.pos, src.Pos[:n*core.PosWordsVeryHigh]},
		{s.other, src.Other[:n*core.OtherWordsVeryHigh]},
		{s.sh, src.SH[:n*core.SHWordsVeryHigh]},
	} {
		got, err := r.dev.Read(blk.buf, 0, len(blk.want))
		require.NoError(t, err)
		assert.Equal(t, blk.want, got, blk.buf.Label())
	}
	color, err := r.dev.Read(s.color, 0, s.color.Words())
	require.NoError(t, err)
	for i := uint32(0); i < n; i++ {
		tx := core.SplatIndexToTexel(i) * core.ColorWordsVeryHigh
		assert.Equal(t, src.Color[tx:tx+4], color[tx:tx+4], "color %d", i)
	}
	deletedAfter, err := r.DeletedMask()
	require.NoError(t, err)
	assert.Equal(t, deletedBefore, deletedAfter)
	assert.Equal(t, int(popCount(deletedBefore)), r.DeletedCount())

	order, err := r.DrawOrder(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(n-1), order[n-1])
}

func TestResizeRejectsBadArguments(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(4), core.VeryHigh)
	assert.ErrorIs(t, r.Resize(0), ErrInvalidSplatCount)
	assert.ErrorIs(t, r.Resize(core.MaxSplats+1), ErrInvalidSplatCount)
	assert.NoError(t, r.Resize(4))
	assert.False(t, r.Modified())
	assert.Equal(t, 4, r.SplatCount())

	q := newTestRenderer(t, core.LineSplats(4), quantized)
	assert.ErrorIs(t, q.Resize(8), ErrQuantizedResize)
	assert.Equal(t, 4, q.SplatCount())
}

func TestCopySplatsInto(t *testing.T) {
	dev := gpu.NewCPUDevice(2, nil)
	src := newTestRendererOn(t, dev, "src", core.LineSplats(3), core.VeryHigh)
	dst := newTestRendererOn(t, dev, "dst", core.LineSplats(5), core.VeryHigh)
	selectRange(t, src, lineCamera(), 1, 1, false)
	require.NoError(t, src.DeleteSelected())

	src.Transform.Position = mgl32.Vec3{10, 0, 0}
	dst.Transform.Position = mgl32.Vec3{0, 1, 0}
	require.NoError(t, src.CopySplatsInto(dst, 0, 3, 3))
	assert.True(t, dst.Modified())

	pos := readPositions(t, dst)
	assert.Equal(t, mgl32.Vec3{2, 0, 0}, pos[2])
	assert.InDeltaSlice(t, []float32{10, -1, 0}, pos[3][:], 1e-5)
	assert.InDeltaSlice(t, []float32{11, -1, 0}, pos[4][:], 1e-5)

	mask, err := dst.DeletedMask()
	require.NoError(t, err)
	assert.Equal(t, []uint32{1 << 4}, mask)

	assert.ErrorIs(t, src.CopySplatsInto(src, 0, 0, 1), ErrIncompatibleStore)
	q := newTestRendererOn(t, dev, "q", core.LineSplats(4), quantized)
	assert.ErrorIs(t, src.CopySplatsInto(q, 0, 0, 1), ErrIncompatibleStore)
	other := newTestRenderer(t, core.LineSplats(4), core.VeryHigh)
	assert.ErrorIs(t, src.CopySplatsInto(other, 0, 0, 1), ErrIncompatibleStore)
}

func TestExportSplats(t *testing.T) {
	r := newTestRenderer(t, core.LineSplats(4), core.VeryHigh)
	selectRange(t, r, lineCamera(), 1, 1, false)
	require.NoError(t, r.DeleteSelected())

	out, err := r.ExportSplats(false)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, x := range []float32{0, 2, 3} {
		assert.Equal(t, mgl32.Vec3{x, 0, 0}, out[i].Pos)
	}

	r.Transform.Position = mgl32.Vec3{0, 5, 0}
	r.Transform.Scale = mgl32.Vec3{2, 2, 2}
	baked, err := r.ExportSplats(true)
	require.NoError(t, err)
	require.Len(t, baked, 3)
	assert.InDeltaSlice(t, []float32{4, 5, 0}, baked[1].Pos[:], 1e-5)
	assert.Greater(t, baked[1].Scale[0], out[1].Scale[0])

	small, err := r.dev.NewBuffer("small", 10)
	require.NoError(t, err)
	assert.Error(t, r.ExportData(small, false))
}
