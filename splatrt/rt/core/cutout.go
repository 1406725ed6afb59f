package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

type CutoutKind uint8

const (
	CutoutEllipsoid CutoutKind = iota
	CutoutBox
)

// CutoutWords is the device stride of one cutout: a mat4 and a type word,
// padded to 16 byte alignment.
const CutoutWords = 20

const (
	cutoutTypeMask   = 0xFF
	cutoutInvertFlag = 0x100
	cutoutDisabled   = 0xFFFFFFFF
)

// Cutout is a unit sphere or cube placed in the world by Transform and
// stretched by Size.
type Cutout struct {
	Kind      CutoutKind
	Invert    bool
	Disabled  bool
	Size      mgl32.Vec3
	Transform Transform
}

func NewCutout(kind CutoutKind, pos mgl32.Vec3, size mgl32.Vec3) Cutout {
	return Cutout{
		Kind:      kind,
		Size:      size,
		Transform: Transform{Position: pos, Rotation: mgl32.QuatIdent(), Scale: mgl32.Vec3{1, 1, 1}},
	}
}

// CutoutData is the device form: Matrix maps renderer object space into the
// cutout's unit space.
type CutoutData struct {
	Matrix       mgl32.Mat4
	TypeAndFlags uint32
}

func (c *Cutout) ShaderData(rendererObjectToWorld mgl32.Mat4) CutoutData {
	if c.Disabled {
		return CutoutData{TypeAndFlags: cutoutDisabled}
	}
	size := c.Size
	for i := range size {
		if size[i] == 0 {
			size[i] = 1
		}
	}
	inv := mgl32.Scale3D(1/size[0], 1/size[1], 1/size[2])
	d := CutoutData{
		Matrix:       inv.Mul4(c.Transform.WorldToObject()).Mul4(rendererObjectToWorld),
		TypeAndFlags: uint32(c.Kind),
	}
	if c.Invert {
		d.TypeAndFlags |= cutoutInvertFlag
	}
	return d
}

func (d CutoutData) Words() [CutoutWords]uint32 {
	var w [CutoutWords]uint32
	for i, v := range d.Matrix {
		w[i] = f2u(v)
	}
	w[16] = d.TypeAndFlags
	return w
}

func CutoutDataFromWords(w []uint32) CutoutData {
	var d CutoutData
	for i := range d.Matrix {
		d.Matrix[i] = u2f(w[i])
	}
	d.TypeAndFlags = w[16]
	return d
}

// Contains reports whether an object space position is inside the cutout shape.
func (d CutoutData) Contains(pos mgl32.Vec3) bool {
	p := d.Matrix.Mul4x1(pos.Vec4(1)).Vec3()
	switch CutoutKind(d.TypeAndFlags & cutoutTypeMask) {
	case CutoutEllipsoid:
		return p.Dot(p) <= 1
	case CutoutBox:
		return abs32(p[0]) <= 1 && abs32(p[1]) <= 1 && abs32(p[2]) <= 1
	}
	return false
}

// IsSplatCut walks the cutouts in order. The first one that contains the
// splat decides: a normal cutout keeps it, an inverted one cuts it. A splat
// outside every cutout takes the verdict of the last one it missed.
func IsSplatCut(cutouts []CutoutData, pos mgl32.Vec3) bool {
	cut := false
	for _, c := range cutouts {
		if c.TypeAndFlags == cutoutDisabled {
			continue
		}
		invert := c.TypeAndFlags&cutoutInvertFlag != 0
		if c.Contains(pos) {
			return invert
		}
		cut = !invert
	}
	return cut
}

// CutoutWordsFor packs a list for upload. An empty list still yields one
// disabled entry so the device buffer is never zero sized.
func CutoutWordsFor(cutouts []Cutout, rendererObjectToWorld mgl32.Mat4) []uint32 {
	n := max(len(cutouts), 1)
	out := make([]uint32, n*CutoutWords)
	if len(cutouts) == 0 {
		out[16] = cutoutDisabled
		return out
	}
	for i := range cutouts {
		w := cutouts[i].ShaderData(rendererObjectToWorld).Words()
		copy(out[i*CutoutWords:], w[:])
	}
	return out
}

// DecodeCutouts is the inverse of CutoutWordsFor for count entries.
func DecodeCutouts(words []uint32, count uint32) []CutoutData {
	out := make([]CutoutData, count)
	for i := range out {
		out[i] = CutoutDataFromWords(words[i*CutoutWords:])
	}
	return out
}
