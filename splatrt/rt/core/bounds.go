package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// CountsWords is the size of the edit counts block: selected, deleted and cut
// counts followed by the sortable encoded min xyz and max xyz.
const CountsWords = 9

const (
	CountSelected = 0
	CountDeleted  = 1
	CountCut      = 2
	CountMin      = 3
	CountMax      = 6
)

type Bounds struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

func (b Bounds) Center() mgl32.Vec3  { return b.Min.Add(b.Max).Mul(0.5) }
func (b Bounds) Extents() mgl32.Vec3 { return b.Max.Sub(b.Min).Mul(0.5) }

func (b Bounds) Contains(p mgl32.Vec3, eps float32) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i]-eps || p[i] > b.Max[i]+eps {
			return false
		}
	}
	return true
}

// Inflate replaces the extents with minExtent on every axis when the squared
// length of the extents is below degenerateSq. The center is kept.
func (b Bounds) Inflate(minExtent, degenerateSq float32) Bounds {
	e := b.Extents()
	if e.Dot(e) >= degenerateSq {
		return b
	}
	c := b.Center()
	ext := mgl32.Vec3{minExtent, minExtent, minExtent}
	return Bounds{Min: c.Sub(ext), Max: c.Add(ext)}
}

// EditCounts is the host copy of the counts block. Bounds are in object space
// and left zero when nothing is selected.
type EditCounts struct {
	Selected uint32
	Deleted  uint32
	Cut      uint32
	Bounds   Bounds
}

// InitialCountsWords is the reduction identity: zero counters, min at the
// largest sortable key and max at the smallest.
func InitialCountsWords() [CountsWords]uint32 {
	return [CountsWords]uint32{0, 0, 0, 0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFF, 0, 0, 0}
}

func DecodeEditCounts(w []uint32, minExtent, degenerateSq float32) EditCounts {
	c := EditCounts{Selected: w[CountSelected], Deleted: w[CountDeleted], Cut: w[CountCut]}
	if c.Selected == 0 || w[CountMin] > w[CountMax] {
		return c
	}
	b := Bounds{
		Min: mgl32.Vec3{SortableUintToFloat(w[CountMin]), SortableUintToFloat(w[CountMin+1]), SortableUintToFloat(w[CountMin+2])},
		Max: mgl32.Vec3{SortableUintToFloat(w[CountMax]), SortableUintToFloat(w[CountMax+1]), SortableUintToFloat(w[CountMax+2])},
	}
	c.Bounds = b.Inflate(minExtent, degenerateSq)
	return c
}

// WorldBounds transforms the corners of b and returns their enclosing box.
func (b Bounds) WorldBounds(m mgl32.Mat4) Bounds {
	out := Bounds{
		Min: mgl32.Vec3{float32(1e38), 1e38, 1e38},
		Max: mgl32.Vec3{-1e38, -1e38, -1e38},
	}
	for i := 0; i < 8; i++ {
		p := mgl32.Vec3{b.Min[0], b.Min[1], b.Min[2]}
		if i&1 != 0 {
			p[0] = b.Max[0]
		}
		if i&2 != 0 {
			p[1] = b.Max[1]
		}
		if i&4 != 0 {
			p[2] = b.Max[2]
		}
		w := m.Mul4x1(p.Vec4(1)).Vec3()
		for k := 0; k < 3; k++ {
			out.Min[k] = min(out.Min[k], w[k])
			out.Max[k] = max(out.Max[k], w[k])
		}
	}
	return out
}
