package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// ViewDataWords is the per splat stride of a view buffer (40 bytes).
const ViewDataWords = 10

// ViewData is the screen space descriptor handed to the rasterizer. Color
// holds four halves: r|g<<16 and b|a<<16. Pos.W == 0 marks a splat that must
// not be drawn.
type ViewData struct {
	Pos   mgl32.Vec4
	Axis1 mgl32.Vec2
	Axis2 mgl32.Vec2
	Color [2]uint32
}

func (v *ViewData) Put(w []uint32) {
	w[0], w[1], w[2], w[3] = f2u(v.Pos[0]), f2u(v.Pos[1]), f2u(v.Pos[2]), f2u(v.Pos[3])
	w[4], w[5] = f2u(v.Axis1[0]), f2u(v.Axis1[1])
	w[6], w[7] = f2u(v.Axis2[0]), f2u(v.Axis2[1])
	w[8], w[9] = v.Color[0], v.Color[1]
}

func ViewDataFromWords(w []uint32) ViewData {
	return ViewData{
		Pos:   mgl32.Vec4{u2f(w[0]), u2f(w[1]), u2f(w[2]), u2f(w[3])},
		Axis1: mgl32.Vec2{u2f(w[4]), u2f(w[5])},
		Axis2: mgl32.Vec2{u2f(w[6]), u2f(w[7])},
		Color: [2]uint32{w[8], w[9]},
	}
}

func (v *ViewData) RGBA() mgl32.Vec4 {
	r, g := UnpackHalf2(v.Color[0])
	b, a := UnpackHalf2(v.Color[1])
	return mgl32.Vec4{r, g, b, a}
}

func (v *ViewData) Visible() bool { return v.Pos[3] > 0 }

// ViewParams is everything the projection of one splat for one eye needs.
type ViewParams struct {
	ObjectToWorld mgl32.Mat4
	WorldToObject mgl32.Mat4
	View          mgl32.Mat4
	Proj          mgl32.Mat4
	CameraPos     mgl32.Vec3
	ScreenWidth   float32
	SplatScale    float32
	OpacityScale  float32
	SHOrder       int
	SHOnly        bool
}

// ProjectSplat computes the view record of sp. Splats behind the camera keep
// their clip position and zero axes.
func ProjectSplat(sp *Splat, p *ViewParams) ViewData {
	world := p.ObjectToWorld.Mul4x1(sp.Pos.Vec4(1))
	clip := p.Proj.Mul4(p.View).Mul4x1(world)

	v := ViewData{Pos: clip}
	if clip[3] <= 0 {
		return v
	}

	cov0, cov1 := Covariance3D(RotationScaleMatrix(sp.Rot, sp.Scale))
	s2 := p.SplatScale * p.SplatScale
	cov0, cov1 = cov0.Mul(s2), cov1.Mul(s2)
	mv := p.View.Mul4(p.ObjectToWorld)
	cov2d := Covariance2D(sp.Pos, cov0, cov1, mv, p.Proj, p.ScreenWidth)
	v.Axis1, v.Axis2 = DecomposeCovariance(cov2d)

	worldViewDir := p.CameraPos.Sub(world.Vec3())
	objViewDir := p.WorldToObject.Mul4x1(worldViewDir.Vec4(0)).Vec3()
	if l := objViewDir.Len(); l > 0 {
		objViewDir = objViewDir.Mul(1 / l)
	}
	col := ShadeSH(sp.Color, &sp.SH, objViewDir, p.SHOrder, p.SHOnly)
	opacity := sp.Opacity * p.OpacityScale

	v.Color = [2]uint32{PackHalf2(col[0], col[1]), PackHalf2(col[2], opacity)}
	return v
}
