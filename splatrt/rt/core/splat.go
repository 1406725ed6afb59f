package core

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
)

// SHBands1to3 holds the 15 RGB coefficients of bands 1..3.
type SHBands1to3 [15]mgl32.Vec3

// Splat is one decoded splat in object space. Color is the band 0 term
// already evaluated, so a flat shaded splat has Color as its final rgb.
type Splat struct {
	Pos     mgl32.Vec3
	Rot     mgl32.Vec4 // xyzw
	Scale   mgl32.Vec3
	Opacity float32
	Color   mgl32.Vec3
	SH      SHBands1to3
}

// SplatSource is a word view over the data blocks of one store. It is what
// the compute kernels read from.
type SplatSource struct {
	Format     Format
	Count      uint32
	ChunkCount uint32

	Pos    []uint32
	Other  []uint32
	SH     []uint32
	Color  []uint32
	Chunks []uint32
}

func loadU16(w []uint32, addr uint32) uint32 {
	return (w[addr>>2] >> ((addr & 2) * 8)) & 0xFFFF
}

func loadU32(w []uint32, addr uint32) uint32 {
	if addr&3 == 0 {
		return w[addr>>2]
	}
	return loadU16(w, addr) | loadU16(w, addr+2)<<16
}

func loadVector(w []uint32, addr uint32, f VectorFormat) mgl32.Vec3 {
	switch f {
	case VectorFloat32:
		return mgl32.Vec3{u2f(loadU32(w, addr)), u2f(loadU32(w, addr+4)), u2f(loadU32(w, addr+8))}
	case VectorNorm16:
		return mgl32.Vec3{
			float32(loadU16(w, addr)) / 65535.0,
			float32(loadU16(w, addr+2)) / 65535.0,
			float32(loadU16(w, addr+4)) / 65535.0,
		}
	case VectorNorm11:
		return DecodeNorm11(loadU32(w, addr))
	case VectorNorm6:
		return DecodeNorm6(loadU16(w, addr))
	}
	return mgl32.Vec3{}
}

func (s *SplatSource) chunk(idx uint32) (ChunkInfo, bool) {
	ci := idx / ChunkSize
	if ci >= s.ChunkCount {
		return ChunkInfo{}, false
	}
	return ChunkInfoFromWords(s.Chunks[ci*ChunkInfoWords:]), true
}

func lerpHalf2(v float32, h uint32) float32 {
	lo, hi := UnpackHalf2(h)
	return lerp(lo, hi, v)
}

// LoadPos decodes only the position, which is all the distance and
// selection kernels need.
func (s *SplatSource) LoadPos(idx uint32) mgl32.Vec3 {
	pos := loadVector(s.Pos, idx*uint32(s.Format.PosStride()), s.Format.Pos)
	if c, ok := s.chunk(idx); ok {
		pos = mgl32.Vec3{
			lerp(c.PosX[0], c.PosX[1], pos[0]),
			lerp(c.PosY[0], c.PosY[1], pos[1]),
			lerp(c.PosZ[0], c.PosZ[1], pos[2]),
		}
	}
	return pos
}

// Load decodes the full splat at idx.
func (s *SplatSource) Load(idx uint32) Splat {
	var sp Splat
	f := s.Format
	sp.Pos = loadVector(s.Pos, idx*uint32(f.PosStride()), f.Pos)

	otherAddr := idx * uint32(f.OtherStride())
	sp.Rot = DecodeRotationWord(loadU32(s.Other, otherAddr))
	sp.Scale = loadVector(s.Other, otherAddr+4, f.Scale)

	col := s.loadColor(idx)
	s.loadSH(idx, &sp.SH)

	if c, ok := s.chunk(idx); ok {
		sp.Pos = mgl32.Vec3{
			lerp(c.PosX[0], c.PosX[1], sp.Pos[0]),
			lerp(c.PosY[0], c.PosY[1], sp.Pos[1]),
			lerp(c.PosZ[0], c.PosZ[1], sp.Pos[2]),
		}
		sp.Scale = mgl32.Vec3{
			lerpHalf2(sp.Scale[0], c.SclX),
			lerpHalf2(sp.Scale[1], c.SclY),
			lerpHalf2(sp.Scale[2], c.SclZ),
		}
		// scale is stored as its 8th root
		for i := 0; i < 3; i++ {
			v := sp.Scale[i] * sp.Scale[i]
			v *= v
			sp.Scale[i] = v * v
		}
		col = mgl32.Vec4{
			lerpHalf2(col[0], c.ColR),
			lerpHalf2(col[1], c.ColG),
			lerpHalf2(col[2], c.ColB),
			lerpHalf2(col[3], c.ColA),
		}
		col[3] = InvSquareCentered01(col[3])
		if f.SH == SHNorm11 || f.SH == SHNorm6 {
			for i := range sp.SH {
				sp.SH[i] = mgl32.Vec3{
					lerpHalf2(sp.SH[i][0], c.ShR),
					lerpHalf2(sp.SH[i][1], c.ShG),
					lerpHalf2(sp.SH[i][2], c.ShB),
				}
			}
		}
	}
	sp.Color = col.Vec3()
	sp.Opacity = col[3]
	return sp
}

func (s *SplatSource) loadColor(idx uint32) mgl32.Vec4 {
	t := SplatIndexToTexel(idx)
	switch s.Format.Color {
	case ColorFloat32x4:
		w := s.Color[t*4:]
		return mgl32.Vec4{u2f(w[0]), u2f(w[1]), u2f(w[2]), u2f(w[3])}
	case ColorFloat16x4:
		r, g := UnpackHalf2(s.Color[t*2])
		b, a := UnpackHalf2(s.Color[t*2+1])
		return mgl32.Vec4{r, g, b, a}
	case ColorNorm8x4:
		v := s.Color[t]
		return mgl32.Vec4{
			float32(v&0xFF) / 255.0,
			float32((v>>8)&0xFF) / 255.0,
			float32((v>>16)&0xFF) / 255.0,
			float32(v>>24) / 255.0,
		}
	}
	return mgl32.Vec4{}
}

func (s *SplatSource) loadSH(idx uint32, sh *SHBands1to3) {
	addr := idx * uint32(s.Format.SHStride())
	switch s.Format.SH {
	case SHFloat32:
		for i := uint32(0); i < 15; i++ {
			a := addr + i*12
			sh[i] = mgl32.Vec3{u2f(loadU32(s.SH, a)), u2f(loadU32(s.SH, a+4)), u2f(loadU32(s.SH, a+8))}
		}
	case SHFloat16:
		for i := uint32(0); i < 15; i++ {
			a := addr + i*6
			sh[i] = mgl32.Vec3{FromF16(loadU16(s.SH, a)), FromF16(loadU16(s.SH, a+2)), FromF16(loadU16(s.SH, a+4))}
		}
	case SHNorm11:
		for i := uint32(0); i < 15; i++ {
			sh[i] = DecodeNorm11(loadU32(s.SH, addr+i*4))
		}
	case SHNorm6:
		for i := uint32(0); i < 15; i++ {
			sh[i] = DecodeNorm6(loadU16(s.SH, addr+i*2))
		}
	}
}

// VeryHigh record sizes in words, used by the copy kernel.
const (
	PosWordsVeryHigh   = 3
	OtherWordsVeryHigh = 4
	SHWordsVeryHigh    = 48
	ColorWordsVeryHigh = 4
)

// EncodeVeryHigh writes sp at idx into VeryHigh laid out word blocks. rotWord
// is written as is when passRot is set, so identity copies keep the exact
// packed rotation.
func EncodeVeryHigh(sp *Splat, idx uint32, pos, other, sh, color []uint32, rotWord uint32, passRot bool) {
	p := pos[idx*PosWordsVeryHigh:]
	p[0], p[1], p[2] = f2u(sp.Pos[0]), f2u(sp.Pos[1]), f2u(sp.Pos[2])

	o := other[idx*OtherWordsVeryHigh:]
	if passRot {
		o[0] = rotWord
	} else {
		o[0] = EncodeRotation(sp.Rot)
	}
	o[1], o[2], o[3] = f2u(sp.Scale[0]), f2u(sp.Scale[1]), f2u(sp.Scale[2])

	s := sh[idx*SHWordsVeryHigh:]
	for i := 0; i < 15; i++ {
		s[i*3+0] = f2u(sp.SH[i][0])
		s[i*3+1] = f2u(sp.SH[i][1])
		s[i*3+2] = f2u(sp.SH[i][2])
	}
	s[45], s[46], s[47] = 0, 0, 0

	t := SplatIndexToTexel(idx)
	c := color[t*ColorWordsVeryHigh:]
	c[0], c[1], c[2], c[3] = f2u(sp.Color[0]), f2u(sp.Color[1]), f2u(sp.Color[2]), f2u(sp.Opacity)
}

// RotationWord returns the raw packed rotation of splat idx.
func (s *SplatSource) RotationWord(idx uint32) uint32 {
	return loadU32(s.Other, idx*uint32(s.Format.OtherStride()))
}

// BytesToWords reinterprets a little endian block as words, zero padding the tail.
func BytesToWords(b []byte) []uint32 {
	w := make([]uint32, (len(b)+3)/4)
	n := len(b) / 4
	for i := 0; i < n; i++ {
		w[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if rem := len(b) - n*4; rem > 0 {
		var tail [4]byte
		copy(tail[:], b[n*4:])
		w[n] = binary.LittleEndian.Uint32(tail[:])
	}
	return w
}

func WordsToBytes(w []uint32) []byte {
	b := make([]byte, len(w)*4)
	for i, v := range w {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	return b
}

func F32ToWords(f []float32) []uint32 {
	w := make([]uint32, len(f))
	for i, v := range f {
		w[i] = f2u(v)
	}
	return w
}

func WordsToF32(w []uint32) []float32 {
	f := make([]float32, len(w))
	for i, v := range w {
		f[i] = u2f(v)
	}
	return f
}
