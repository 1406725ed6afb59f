package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/x448/float16"
)

func f2u(f float32) uint32 { return math.Float32bits(f) }
func u2f(u uint32) float32 { return math.Float32frombits(u) }

// F16 returns the IEEE half bits of f.
func F16(f float32) uint32 { return uint32(float16.Fromfloat32(f).Bits()) }

// FromF16 decodes the low 16 bits of h as an IEEE half.
func FromF16(h uint32) float32 { return float16.Frombits(uint16(h & 0xFFFF)).Float32() }

// PackHalf2 stores a in the low and b in the high 16 bits.
func PackHalf2(a, b float32) uint32 { return F16(a) | F16(b)<<16 }

func UnpackHalf2(v uint32) (float32, float32) { return FromF16(v), FromF16(v >> 16) }

func saturate(f float32) float32 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func lerp(a, b, t float32) float32 { return a + (b-a)*t }

// DecodeNorm11 unpacks an 11.10.11 normalized vector.
func DecodeNorm11(v uint32) mgl32.Vec3 {
	return mgl32.Vec3{
		float32(v&2047) / 2047.0,
		float32((v>>11)&1023) / 1023.0,
		float32((v>>21)&2047) / 2047.0,
	}
}

func EncodeNorm11(v mgl32.Vec3) uint32 {
	return uint32(saturate(v[0])*2047.5) | uint32(saturate(v[1])*1023.5)<<11 | uint32(saturate(v[2])*2047.5)<<21
}

// DecodeNorm6 unpacks a 5.6.5 normalized vector from the low 16 bits.
func DecodeNorm6(v uint32) mgl32.Vec3 {
	return mgl32.Vec3{
		float32(v&31) / 31.0,
		float32((v>>5)&63) / 63.0,
		float32((v>>11)&31) / 31.0,
	}
}

func EncodeNorm6(v mgl32.Vec3) uint32 {
	return uint32(saturate(v[0])*31.5) | uint32(saturate(v[1])*63.5)<<5 | uint32(saturate(v[2])*31.5)<<11
}

// DecodePacked10_10_10_2 unpacks a rotation word into four 0..1 values.
func DecodePacked10_10_10_2(v uint32) mgl32.Vec4 {
	return mgl32.Vec4{
		float32(v&1023) / 1023.0,
		float32((v>>10)&1023) / 1023.0,
		float32((v>>20)&1023) / 1023.0,
		float32((v>>30)&3) / 3.0,
	}
}

func EncodeQuatToNorm10(v mgl32.Vec4) uint32 {
	return uint32(saturate(v[0])*1023.5) | uint32(saturate(v[1])*1023.5)<<10 |
		uint32(saturate(v[2])*1023.5)<<20 | uint32(saturate(v[3])*3.5)<<30
}

// Quaternions are handled as xyzw vectors on the device; QuatToVec4 and
// Vec4ToQuat convert to mgl32's (W, V) layout.
func QuatToVec4(q mgl32.Quat) mgl32.Vec4 { return mgl32.Vec4{q.V[0], q.V[1], q.V[2], q.W} }
func Vec4ToQuat(v mgl32.Vec4) mgl32.Quat { return mgl32.Quat{W: v[3], V: mgl32.Vec3{v[0], v[1], v[2]}} }

// PackSmallest3Rotation drops the largest quaternion component and remaps the
// other three to 0..1. The w lane carries the dropped index divided by 3.
func PackSmallest3Rotation(q mgl32.Vec4) mgl32.Vec4 {
	index := 0
	maxV := abs32(q[0])
	for i := 1; i < 4; i++ {
		if a := abs32(q[i]); a > maxV {
			index, maxV = i, a
		}
	}
	switch index {
	case 0:
		q = mgl32.Vec4{q[1], q[2], q[3], q[0]}
	case 1:
		q = mgl32.Vec4{q[0], q[2], q[3], q[1]}
	case 2:
		q = mgl32.Vec4{q[0], q[1], q[3], q[2]}
	}
	s := float32(1)
	if q[3] < 0 {
		s = -1
	}
	var out mgl32.Vec4
	for i := 0; i < 3; i++ {
		out[i] = (q[i]*s*math.Sqrt2)*0.5 + 0.5
	}
	out[3] = float32(index) / 3.0
	return out
}

// DecodeRotation rebuilds an xyzw quaternion from a smallest-three encoding.
func DecodeRotation(pq mgl32.Vec4) mgl32.Vec4 {
	idx := uint32(math.Round(float64(pq[3] * 3.0)))
	var q mgl32.Vec4
	for i := 0; i < 3; i++ {
		q[i] = pq[i]*math.Sqrt2 - 1.0/math.Sqrt2
	}
	d := q[0]*q[0] + q[1]*q[1] + q[2]*q[2]
	q[3] = float32(math.Sqrt(float64(1.0 - saturate(d))))
	switch idx {
	case 0:
		q = mgl32.Vec4{q[3], q[0], q[1], q[2]}
	case 1:
		q = mgl32.Vec4{q[0], q[3], q[1], q[2]}
	case 2:
		q = mgl32.Vec4{q[0], q[1], q[3], q[2]}
	}
	return q
}

// EncodeRotation packs a unit xyzw quaternion into a rotation word.
func EncodeRotation(q mgl32.Vec4) uint32 {
	return EncodeQuatToNorm10(PackSmallest3Rotation(q))
}

// DecodeRotationWord is the inverse of EncodeRotation.
func DecodeRotationWord(v uint32) mgl32.Vec4 {
	return DecodeRotation(DecodePacked10_10_10_2(v))
}

// QuatMul multiplies two xyzw quaternions.
func QuatMul(a, b mgl32.Vec4) mgl32.Vec4 {
	return QuatToVec4(Vec4ToQuat(a).Mul(Vec4ToQuat(b)))
}

// QuatRotateVector rotates v by the xyzw quaternion q.
func QuatRotateVector(v mgl32.Vec3, q mgl32.Vec4) mgl32.Vec3 {
	return Vec4ToQuat(q).Rotate(v)
}

// SquareCentered01 and InvSquareCentered01 are the opacity companding used by
// chunk quantized color data.
func SquareCentered01(x float32) float32 {
	x -= 0.5
	x *= x * sign32(x)
	return x*2.0 + 0.5
}

func InvSquareCentered01(x float32) float32 {
	x -= 0.5
	x *= 0.5
	x = float32(math.Sqrt(float64(abs32(x)))) * sign32(x)
	return x + 0.5
}

func abs32(f float32) float32 {
	return float32(math.Abs(float64(f)))
}

func sign32(f float32) float32 {
	switch {
	case f > 0:
		return 1
	case f < 0:
		return -1
	}
	return 0
}
