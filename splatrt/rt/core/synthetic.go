package core

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

// LineSplats places n small opaque splats at (i, 0, 0).
func LineSplats(n int) []Splat {
	out := make([]Splat, n)
	for i := range out {
		out[i] = Splat{
			Pos:     mgl32.Vec3{float32(i), 0, 0},
			Rot:     mgl32.Vec4{0, 0, 0, 1},
			Scale:   mgl32.Vec3{0.05, 0.05, 0.05},
			Opacity: 1,
			Color:   mgl32.Vec3{1, 1, 1},
		}
	}
	return out
}

// SyntheticSplats scatters n random splats in a sphere of the given radius.
func SyntheticSplats(n int, radius float32, rng *rand.Rand) []Splat {
	out := make([]Splat, n)
	for i := range out {
		dir := mgl32.Vec3{float32(rng.NormFloat64()), float32(rng.NormFloat64()), float32(rng.NormFloat64())}
		if dir.Len() == 0 {
			dir = mgl32.Vec3{1, 0, 0}
		}
		r := radius * float32(math.Cbrt(rng.Float64()))
		q := mgl32.Vec4{float32(rng.NormFloat64()), float32(rng.NormFloat64()), float32(rng.NormFloat64()), float32(rng.NormFloat64())}
		if l := q.Len(); l > 0 {
			q = q.Mul(1 / l)
		} else {
			q = mgl32.Vec4{0, 0, 0, 1}
		}
		sp := Splat{
			Pos:     dir.Normalize().Mul(r),
			Rot:     q,
			Scale:   mgl32.Vec3{0.01 + rng.Float32()*0.05, 0.01 + rng.Float32()*0.05, 0.01 + rng.Float32()*0.05},
			Opacity: 0.2 + rng.Float32()*0.8,
			Color:   mgl32.Vec3{rng.Float32(), rng.Float32(), rng.Float32()},
		}
		for k := range sp.SH {
			sp.SH[k] = mgl32.Vec3{(rng.Float32() - 0.5) * 0.2, (rng.Float32() - 0.5) * 0.2, (rng.Float32() - 0.5) * 0.2}
		}
		out[i] = sp
	}
	return out
}
