package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ExportFloats is the size of one exported splat record (248 bytes).
const ExportFloats = 62

// ExportSplat is the self contained per splat record written by the export
// kernel, in the units of the common PLY splat layout.
type ExportSplat struct {
	Pos     mgl32.Vec3
	Nor     mgl32.Vec3 // Nor[0] == 1 marks a deleted or cut splat
	DC0     mgl32.Vec3
	SHRest  [45]float32 // 15 red, 15 green, 15 blue
	Opacity float32     // logit
	Scale   mgl32.Vec3  // log
	Rot     mgl32.Vec4  // wxyz
}

func (e *ExportSplat) Skipped() bool { return e.Nor[0] != 0 }

// NewExportSplat converts a decoded splat into its export record.
func NewExportSplat(sp *Splat, skip bool) ExportSplat {
	e := ExportSplat{
		Pos:     sp.Pos,
		DC0:     InvSH0(sp.Color),
		Opacity: InvSigmoid(sp.Opacity),
		Rot:     mgl32.Vec4{sp.Rot[3], sp.Rot[0], sp.Rot[1], sp.Rot[2]},
	}
	if skip {
		e.Nor[0] = 1
	}
	for i := 0; i < 3; i++ {
		e.Scale[i] = float32(math.Log(float64(sp.Scale[i])))
	}
	for c := 0; c < 3; c++ {
		for i := 0; i < 15; i++ {
			e.SHRest[c*15+i] = sp.SH[i][c]
		}
	}
	return e
}

func (e *ExportSplat) Put(f []float32) {
	copy(f[0:3], e.Pos[:])
	copy(f[3:6], e.Nor[:])
	copy(f[6:9], e.DC0[:])
	copy(f[9:54], e.SHRest[:])
	f[54] = e.Opacity
	copy(f[55:58], e.Scale[:])
	copy(f[58:62], e.Rot[:])
}

func ExportSplatFromFloats(f []float32) ExportSplat {
	var e ExportSplat
	copy(e.Pos[:], f[0:3])
	copy(e.Nor[:], f[3:6])
	copy(e.DC0[:], f[6:9])
	copy(e.SHRest[:], f[9:54])
	e.Opacity = f[54]
	copy(e.Scale[:], f[55:58])
	copy(e.Rot[:], f[58:62])
	return e
}

// BakeTransform moves sp by m. rot and scale are the decomposition of m;
// negative scale axes mirror the splat orientation.
func BakeTransform(sp *Splat, m mgl32.Mat4, rot mgl32.Vec4, scale mgl32.Vec3) {
	sp.Pos = m.Mul4x1(sp.Pos.Vec4(1)).Vec3()
	if scale[0] < 0 {
		sp.Rot[1], sp.Rot[2] = -sp.Rot[1], -sp.Rot[2]
	}
	if scale[1] < 0 {
		sp.Rot[0], sp.Rot[2] = -sp.Rot[0], -sp.Rot[2]
	}
	if scale[2] < 0 {
		sp.Rot[0], sp.Rot[1] = -sp.Rot[0], -sp.Rot[1]
	}
	sp.Rot = QuatMul(rot, sp.Rot)
	for i := 0; i < 3; i++ {
		sp.Scale[i] *= abs32(scale[i])
	}
	RotateSH(&sp.SH, SHRotation(m))
}
