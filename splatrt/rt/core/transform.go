package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func NewTransform() *Transform {
	return &Transform{
		Position: mgl32.Vec3{0, 0, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

func (t *Transform) ObjectToWorld() mgl32.Mat4 {
	// M = T * R * S
	translate := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	rotate := t.Rotation.Mat4()
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())

	return translate.Mul4(rotate).Mul4(scale)
}

func (t *Transform) WorldToObject() mgl32.Mat4 {
	// inv(M) = inv(S) * inv(R) * inv(T)
	invScale := mgl32.Scale3D(1.0/t.Scale.X(), 1.0/t.Scale.Y(), 1.0/t.Scale.Z())
	invRotate := t.Rotation.Conjugate().Mat4()
	invTranslate := mgl32.Translate3D(-t.Position.X(), -t.Position.Y(), -t.Position.Z())

	return invScale.Mul4(invRotate).Mul4(invTranslate)
}

// DecomposeRotationScale splits the linear part of m into a rotation and a
// lossy per axis scale. A mirrored basis puts the flip on the x scale.
func DecomposeRotationScale(m mgl32.Mat4) (mgl32.Quat, mgl32.Vec3) {
	m3 := m.Mat3()
	c0, c1, c2 := m3.Col(0), m3.Col(1), m3.Col(2)
	scale := mgl32.Vec3{c0.Len(), c1.Len(), c2.Len()}
	if m3.Det() < 0 {
		scale[0] = -scale[0]
	}
	var r mgl32.Mat3
	for i, c := range [3]mgl32.Vec3{c0, c1, c2} {
		if scale[i] != 0 {
			c = c.Mul(1 / scale[i])
		}
		r.SetCol(i, c)
	}
	return mgl32.Mat4ToQuat(r.Mat4()).Normalize(), scale
}

// IsIdentity reports whether m is the identity within eps.
func IsIdentity(m mgl32.Mat4, eps float32) bool {
	return m.ApproxEqualThreshold(mgl32.Ident4(), eps)
}
