package gpu

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ParamsSize is the byte size of the WGSL Params uniform.
const ParamsSize = 688

// Copy flag bits.
const (
	CopyFlagBake     = 1 << 0
	CopyFlagIdentity = 1 << 1
)

// Selection modes of the rect select kernel.
const (
	SelectionSubtract = 0
	SelectionAdd      = 1
)

// Params is the uniform block shared by all splat kernels. Kernels only read
// the fields they need; the rest may be left zero.
type Params struct {
	ObjectToWorld mgl32.Mat4
	WorldToObject mgl32.Mat4
	CopyMatrix    mgl32.Mat4
	EyeView       [2]mgl32.Mat4
	EyeProj       [2]mgl32.Mat4
	EyeCamPos     [2]mgl32.Vec3

	ScreenParams mgl32.Vec4

	SelectionCenter mgl32.Vec3
	SelectionDelta  mgl32.Vec3
	// SelectionRot rotates world space offsets, SelectionRotLocal is the same
	// rotation expressed in object space and applied to splat orientation.
	SelectionRot      mgl32.Vec4
	SelectionRotLocal mgl32.Vec4
	// SelectionRect is (minX, minY, maxX, maxY) in pixels, origin top left.
	SelectionRect mgl32.Vec4

	CopyRot   mgl32.Vec4
	CopyScale mgl32.Vec3

	SplatCount    uint32
	SplatFormat   uint32
	ChunkCount    uint32
	CutoutCount   uint32
	ViewCount     uint32
	BufferSize    uint32
	SelectionMode uint32
	SHOrder       uint32
	SHOnly        bool
	BitsValid     bool
	CopySrcStart  uint32
	CopyDstStart  uint32
	CopyCount     uint32
	CopyDstSize   uint32
	CopyFlags     uint32
	SplatScale    float32
	OpacityScale  float32
}

func putMat(b []byte, off int, m mgl32.Mat4) {
	for i, v := range m {
		binary.LittleEndian.PutUint32(b[off+i*4:], math.Float32bits(v))
	}
}

func putVec(b []byte, off int, v ...float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[off+i*4:], math.Float32bits(f))
	}
}

func putU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:], v)
}

func boolU32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

// Bytes packs p into the little endian uniform layout.
func (p *Params) Bytes() []byte {
	// struct Params {
	//   obj_to_world: mat4x4<f32>,       0
	//   world_to_obj: mat4x4<f32>,       64
	//   copy_matrix: mat4x4<f32>,        128
	//   eye_view: array<mat4x4<f32>, 2>, 192
	//   eye_proj: array<mat4x4<f32>, 2>, 320
	//   eye_cam_pos: array<vec4<f32>, 2>, 448
	//   screen_params: vec4<f32>,        480
	//   selection_center: vec4<f32>,     496
	//   selection_delta: vec4<f32>,      512
	//   selection_rot: vec4<f32>,        528
	//   selection_rot_local: vec4<f32>,  544
	//   selection_rect: vec4<f32>,       560
	//   copy_rot: vec4<f32>,             576
	//   copy_scale: vec4<f32>,           592
	//   scalars from 608, padded to 688
	// }
	b := make([]byte, ParamsSize)
	putMat(b, 0, p.ObjectToWorld)
	putMat(b, 64, p.WorldToObject)
	putMat(b, 128, p.CopyMatrix)
	putMat(b, 192, p.EyeView[0])
	putMat(b, 256, p.EyeView[1])
	putMat(b, 320, p.EyeProj[0])
	putMat(b, 384, p.EyeProj[1])
	putVec(b, 448, p.EyeCamPos[0][:]...)
	putVec(b, 464, p.EyeCamPos[1][:]...)
	putVec(b, 480, p.ScreenParams[:]...)
	putVec(b, 496, p.SelectionCenter[:]...)
	putVec(b, 512, p.SelectionDelta[:]...)
	putVec(b, 528, p.SelectionRot[:]...)
	putVec(b, 544, p.SelectionRotLocal[:]...)
	putVec(b, 560, p.SelectionRect[:]...)
	putVec(b, 576, p.CopyRot[:]...)
	putVec(b, 592, p.CopyScale[:]...)

	putU32(b, 608, p.SplatCount)
	putU32(b, 612, p.SplatFormat)
	putU32(b, 616, p.ChunkCount)
	putU32(b, 620, p.CutoutCount)
	putU32(b, 624, p.ViewCount)
	putU32(b, 628, p.BufferSize)
	putU32(b, 632, p.SelectionMode)
	putU32(b, 636, p.SHOrder)
	putU32(b, 640, boolU32(p.SHOnly))
	putU32(b, 644, boolU32(p.BitsValid))
	putU32(b, 648, p.CopySrcStart)
	putU32(b, 652, p.CopyDstStart)
	putU32(b, 656, p.CopyCount)
	putU32(b, 660, p.CopyDstSize)
	putU32(b, 664, p.CopyFlags)
	putVec(b, 668, p.SplatScale, p.OpacityScale)
	return b
}
