package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	SHC0 = 0.2820948
	SHC1 = 0.4886025
)

var (
	shC2 = [5]float32{1.0925484, -1.0925484, 0.3153916, -1.0925484, 0.5462742}
	shC3 = [7]float32{-0.5900436, 2.8906114, -0.4570458, 0.3731763, -0.4570458, 1.4453057, -0.5900436}
)

// ShadeSH evaluates the view dependent color of a splat. dir is the
// normalized object space direction from the splat to the camera. With onlySH
// the band 0 color is replaced by neutral gray.
func ShadeSH(color mgl32.Vec3, sh *SHBands1to3, dir mgl32.Vec3, order int, onlySH bool) mgl32.Vec3 {
	dir = dir.Mul(-1)
	x, y, z := dir[0], dir[1], dir[2]

	res := color
	if onlySH {
		res = mgl32.Vec3{0.5, 0.5, 0.5}
	}
	if order >= 1 {
		res = res.Add(sh[0].Mul(-y).Add(sh[1].Mul(z)).Add(sh[2].Mul(-x)).Mul(SHC1))
		if order >= 2 {
			xx, yy, zz := x*x, y*y, z*z
			xy, yz, xz := x*y, y*z, x*z
			res = res.
				Add(sh[3].Mul(shC2[0] * xy)).
				Add(sh[4].Mul(shC2[1] * yz)).
				Add(sh[5].Mul(shC2[2] * (2*zz - xx - yy))).
				Add(sh[6].Mul(shC2[3] * xz)).
				Add(sh[7].Mul(shC2[4] * (xx - yy)))
			if order >= 3 {
				res = res.
					Add(sh[8].Mul(shC3[0] * y * (3*xx - yy))).
					Add(sh[9].Mul(shC3[1] * xy * z)).
					Add(sh[10].Mul(shC3[2] * y * (4*zz - xx - yy))).
					Add(sh[11].Mul(shC3[3] * z * (2*zz - 3*xx - 3*yy))).
					Add(sh[12].Mul(shC3[4] * x * (4*zz - xx - yy))).
					Add(sh[13].Mul(shC3[5] * z * (xx - yy))).
					Add(sh[14].Mul(shC3[6] * x * (xx - 3*yy)))
			}
		}
	}
	for i := range res {
		if res[i] < 0 {
			res[i] = 0
		}
	}
	return res
}

// RotateSH applies the rotation rot to the band 1 coefficients.
// TODO: bands 2 and 3 need the 5x5 and 7x7 rotation blocks built from rot.
func RotateSH(sh *SHBands1to3, rot mgl32.Mat3) {
	for c := 0; c < 3; c++ {
		a := mgl32.Vec3{-sh[2][c], -sh[0][c], sh[1][c]}
		a = rot.Mul3x1(a)
		sh[0][c] = -a[1]
		sh[1][c] = a[2]
		sh[2][c] = -a[0]
	}
}

// SHRotation is the rotation part of m with the scale removed from each
// column. Axis flips stay in the result.
func SHRotation(m mgl32.Mat4) mgl32.Mat3 {
	r := m.Mat3()
	for c := 0; c < 3; c++ {
		col := r.Col(c)
		if l := col.Len(); l > 0 {
			r.SetCol(c, col.Mul(1/l))
		}
	}
	return r
}

// InvSH0 turns a band 0 color back into its SH coefficient.
func InvSH0(c mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{(c[0] - 0.5) / SHC0, (c[1] - 0.5) / SHC0, (c[2] - 0.5) / SHC0}
}

func InvSigmoid(v float32) float32 {
	d := 1 - v
	if d < 1e-6 {
		d = 1e-6
	}
	return float32(math.Log(float64(v / d)))
}

func Sigmoid(v float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(v))))
}
