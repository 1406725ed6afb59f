package core

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// BuildAsset encodes splats into an asset of the given format. VeryHigh data
// is stored in final units; every other format is chunk quantized.
func BuildAsset(name string, splats []Splat, f Format) (*Asset, error) {
	n := len(splats)
	if n == 0 || n > MaxSplats {
		return nil, fmt.Errorf("build asset %q: splat count %d out of range", name, n)
	}
	a := &Asset{
		Name:          name,
		FormatVersion: AssetVersion,
		SplatCount:    n,
		Format:        f,
		PosData:       make([]byte, alignUp(n*f.PosStride(), 4)),
		OtherData:     make([]byte, alignUp(n*f.OtherStride(), 4)),
		SHData:        make([]byte, alignUp(n*f.SHStride(), 4)),
	}
	w, h := CalcTextureSize(n)
	a.ColorData = make([]byte, w*h*f.Color.TexelWords()*4)

	quantized := f != VeryHigh
	if quantized {
		a.ChunkData = make([]ChunkInfo, (n+ChunkSize-1)/ChunkSize)
	}

	for ci := 0; ci*ChunkSize < n; ci++ {
		start, end := ci*ChunkSize, min((ci+1)*ChunkSize, n)
		var q *chunkRanges
		if quantized {
			q = newChunkRanges(splats[start:end])
			a.ChunkData[ci] = q.info()
		}
		for i := start; i < end; i++ {
			encodeSplat(a, uint32(i), &splats[i], q)
		}
	}
	a.ComputeHash()
	return a, nil
}

func alignUp(v, a int) int { return (v + a - 1) / a * a }

type chunkRanges struct {
	posMin, posMax mgl32.Vec3
	sclMin, sclMax mgl32.Vec3
	colMin, colMax mgl32.Vec4
	shMin, shMax   mgl32.Vec3
}

func scale8th(s mgl32.Vec3) mgl32.Vec3 {
	var out mgl32.Vec3
	for i := range s {
		out[i] = float32(math.Pow(float64(abs32(s[i])), 1.0/8.0))
	}
	return out
}

func storedColor(sp *Splat) mgl32.Vec4 {
	return mgl32.Vec4{sp.Color[0], sp.Color[1], sp.Color[2], SquareCentered01(sp.Opacity)}
}

// roundHalf keeps chunk ranges exactly representable in their half2 form.
func roundHalf(v float32) float32 { return FromF16(F16(v)) }

func newChunkRanges(splats []Splat) *chunkRanges {
	const big = float32(1e30)
	q := &chunkRanges{
		posMin: mgl32.Vec3{big, big, big}, posMax: mgl32.Vec3{-big, -big, -big},
		sclMin: mgl32.Vec3{big, big, big}, sclMax: mgl32.Vec3{-big, -big, -big},
		colMin: mgl32.Vec4{big, big, big, big}, colMax: mgl32.Vec4{-big, -big, -big, -big},
		shMin: mgl32.Vec3{big, big, big}, shMax: mgl32.Vec3{-big, -big, -big},
	}
	for i := range splats {
		sp := &splats[i]
		s8 := scale8th(sp.Scale)
		col := storedColor(sp)
		for k := 0; k < 3; k++ {
			q.posMin[k], q.posMax[k] = min(q.posMin[k], sp.Pos[k]), max(q.posMax[k], sp.Pos[k])
			q.sclMin[k], q.sclMax[k] = min(q.sclMin[k], s8[k]), max(q.sclMax[k], s8[k])
			for _, c := range sp.SH {
				q.shMin[k], q.shMax[k] = min(q.shMin[k], c[k]), max(q.shMax[k], c[k])
			}
		}
		for k := 0; k < 4; k++ {
			q.colMin[k], q.colMax[k] = min(q.colMin[k], col[k]), max(q.colMax[k], col[k])
		}
	}
	for k := 0; k < 3; k++ {
		q.sclMin[k], q.sclMax[k] = roundHalf(q.sclMin[k]), roundHalf(q.sclMax[k])
		q.shMin[k], q.shMax[k] = roundHalf(q.shMin[k]), roundHalf(q.shMax[k])
	}
	for k := 0; k < 4; k++ {
		q.colMin[k], q.colMax[k] = roundHalf(q.colMin[k]), roundHalf(q.colMax[k])
	}
	return q
}

func (q *chunkRanges) info() ChunkInfo {
	return ChunkInfo{
		ColR: PackHalf2(q.colMin[0], q.colMax[0]),
		ColG: PackHalf2(q.colMin[1], q.colMax[1]),
		ColB: PackHalf2(q.colMin[2], q.colMax[2]),
		ColA: PackHalf2(q.colMin[3], q.colMax[3]),
		PosX: [2]float32{q.posMin[0], q.posMax[0]},
		PosY: [2]float32{q.posMin[1], q.posMax[1]},
		PosZ: [2]float32{q.posMin[2], q.posMax[2]},
		SclX: PackHalf2(q.sclMin[0], q.sclMax[0]),
		SclY: PackHalf2(q.sclMin[1], q.sclMax[1]),
		SclZ: PackHalf2(q.sclMin[2], q.sclMax[2]),
		ShR:  PackHalf2(q.shMin[0], q.shMax[0]),
		ShG:  PackHalf2(q.shMin[1], q.shMax[1]),
		ShB:  PackHalf2(q.shMin[2], q.shMax[2]),
	}
}

func normalize01(v, lo, hi float32) float32 {
	if hi <= lo {
		return 0
	}
	return saturate((v - lo) / (hi - lo))
}

func normalizeVec3(v, lo, hi mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{normalize01(v[0], lo[0], hi[0]), normalize01(v[1], lo[1], hi[1]), normalize01(v[2], lo[2], hi[2])}
}

func encodeSplat(a *Asset, idx uint32, sp *Splat, q *chunkRanges) {
	f := a.Format
	pos, scl, col := sp.Pos, sp.Scale, mgl32.Vec4{sp.Color[0], sp.Color[1], sp.Color[2], sp.Opacity}
	sh := sp.SH
	if q != nil {
		pos = normalizeVec3(pos, q.posMin, q.posMax)
		scl = normalizeVec3(scale8th(scl), q.sclMin, q.sclMax)
		sc := storedColor(sp)
		for k := 0; k < 4; k++ {
			col[k] = normalize01(sc[k], q.colMin[k], q.colMax[k])
		}
		if f.SH == SHNorm11 || f.SH == SHNorm6 {
			for i := range sh {
				sh[i] = normalizeVec3(sh[i], q.shMin, q.shMax)
			}
		}
	}

	putVector(a.PosData, int(idx)*f.PosStride(), f.Pos, pos)
	off := int(idx) * f.OtherStride()
	binary.LittleEndian.PutUint32(a.OtherData[off:], EncodeRotation(sp.Rot))
	putVector(a.OtherData, off+4, f.Scale, scl)
	putSH(a.SHData, int(idx)*f.SHStride(), f.SH, &sh)
	putColor(a.ColorData, int(SplatIndexToTexel(idx)), f.Color, col)
}

func putVector(b []byte, off int, f VectorFormat, v mgl32.Vec3) {
	le := binary.LittleEndian
	switch f {
	case VectorFloat32:
		le.PutUint32(b[off:], f2u(v[0]))
		le.PutUint32(b[off+4:], f2u(v[1]))
		le.PutUint32(b[off+8:], f2u(v[2]))
	case VectorNorm16:
		for i := 0; i < 3; i++ {
			le.PutUint16(b[off+i*2:], uint16(saturate(v[i])*65535.5))
		}
	case VectorNorm11:
		le.PutUint32(b[off:], EncodeNorm11(v))
	case VectorNorm6:
		le.PutUint16(b[off:], uint16(EncodeNorm6(v)))
	}
}

func putSH(b []byte, off int, f SHFormat, sh *SHBands1to3) {
	le := binary.LittleEndian
	for i, c := range sh {
		switch f {
		case SHFloat32:
			for k := 0; k < 3; k++ {
				le.PutUint32(b[off+i*12+k*4:], f2u(c[k]))
			}
		case SHFloat16:
			for k := 0; k < 3; k++ {
				le.PutUint16(b[off+i*6+k*2:], uint16(F16(c[k])))
			}
		case SHNorm11:
			le.PutUint32(b[off+i*4:], EncodeNorm11(c))
		case SHNorm6:
			le.PutUint16(b[off+i*2:], uint16(EncodeNorm6(c)))
		}
	}
}

func putColor(b []byte, texel int, f ColorFormat, c mgl32.Vec4) {
	le := binary.LittleEndian
	switch f {
	case ColorFloat32x4:
		for k := 0; k < 4; k++ {
			le.PutUint32(b[texel*16+k*4:], f2u(c[k]))
		}
	case ColorFloat16x4:
		le.PutUint32(b[texel*8:], PackHalf2(c[0], c[1]))
		le.PutUint32(b[texel*8+4:], PackHalf2(c[2], c[3]))
	case ColorNorm8x4:
		for k := 0; k < 4; k++ {
			b[texel*4+k] = uint8(saturate(c[k])*255.5)
		}
	}
}

// SourceFromAsset decodes an asset on the host through the same path the
// kernels use.
func SourceFromAsset(a *Asset) *SplatSource {
	s := &SplatSource{
		Format: a.Format,
		Count:  uint32(a.SplatCount),
		Pos:    BytesToWords(a.PosData),
		Other:  BytesToWords(a.OtherData),
		SH:     BytesToWords(a.SHData),
		Color:  BytesToWords(a.ColorData),
	}
	if a.Quantized() {
		s.ChunkCount = uint32(len(a.ChunkData))
		s.Chunks = ChunkWords(a.ChunkData)
	}
	return s
}

func ChunkWords(chunks []ChunkInfo) []uint32 {
	out := make([]uint32, max(len(chunks), 1)*ChunkInfoWords)
	for i, c := range chunks {
		w := c.Words()
		copy(out[i*ChunkInfoWords:], w[:])
	}
	return out
}
