package core

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

const (
	// AssetVersion is the only splat data layout version the renderer accepts.
	AssetVersion = 2023_10_20
	// MaxSplats bounds every store allocation and resize.
	MaxSplats = 8_600_000
	// ChunkSize is the number of splats sharing one ChunkInfo.
	ChunkSize = 256
	// TextureWidth of the packed color texture; height grows in 16 texel tiles.
	TextureWidth = 2048
	// ChunkInfoWords is the size of one ChunkInfo on the device.
	ChunkInfoWords = 16
)

type VectorFormat uint8

const (
	VectorFloat32 VectorFormat = iota // 12 bytes
	VectorNorm16                      // 6 bytes
	VectorNorm11                      // 4 bytes, 11.10.11
	VectorNorm6                       // 2 bytes, 5.6.5
)

func (f VectorFormat) Stride() int {
	switch f {
	case VectorFloat32:
		return 12
	case VectorNorm16:
		return 6
	case VectorNorm11:
		return 4
	case VectorNorm6:
		return 2
	}
	return 0
}

type SHFormat uint8

const (
	SHFloat32 SHFormat = iota
	SHFloat16
	SHNorm11
	SHNorm6
)

// Stride is the per-splat size of the 15 band 1..3 coefficients, padded to 16 bytes.
func (f SHFormat) Stride() int {
	switch f {
	case SHFloat32:
		return 192
	case SHFloat16:
		return 96
	case SHNorm11:
		return 64
	case SHNorm6:
		return 32
	}
	return 0
}

type ColorFormat uint8

const (
	ColorFloat32x4 ColorFormat = iota
	ColorFloat16x4
	ColorNorm8x4
)

// TexelWords is the size of one color texel in 32-bit words.
func (f ColorFormat) TexelWords() int {
	switch f {
	case ColorFloat32x4:
		return 4
	case ColorFloat16x4:
		return 2
	case ColorNorm8x4:
		return 1
	}
	return 0
}

// Format describes the precision class of each data block.
type Format struct {
	Pos   VectorFormat
	Scale VectorFormat
	SH    SHFormat
	Color ColorFormat
}

// VeryHigh is the full precision layout. It is the only layout that can be
// edited in place, resized or used as a copy destination.
var VeryHigh = Format{Pos: VectorFloat32, Scale: VectorFloat32, SH: SHFloat32, Color: ColorFloat32x4}

// Word packs the format into the single uniform word read by the kernels.
func (f Format) Word() uint32 {
	return uint32(f.Pos) | uint32(f.Scale)<<8 | uint32(f.SH)<<16 | uint32(f.Color)<<24
}

func FormatFromWord(w uint32) Format {
	return Format{
		Pos:   VectorFormat(w & 0xFF),
		Scale: VectorFormat((w >> 8) & 0xFF),
		SH:    SHFormat((w >> 16) & 0xFF),
		Color: ColorFormat((w >> 24) & 0xFF),
	}
}

func (f Format) PosStride() int   { return f.Pos.Stride() }
func (f Format) OtherStride() int { return 4 + f.Scale.Stride() }
func (f Format) SHStride() int    { return f.SH.Stride() }

// ChunkInfo holds the quantization ranges for ChunkSize consecutive splats.
// Half2 fields store min in the low 16 bits and max in the high 16 bits.
type ChunkInfo struct {
	ColR, ColG, ColB, ColA uint32
	PosX, PosY, PosZ       [2]float32
	SclX, SclY, SclZ       uint32
	ShR, ShG, ShB          uint32
}

func (c ChunkInfo) Words() [ChunkInfoWords]uint32 {
	return [ChunkInfoWords]uint32{
		c.ColR, c.ColG, c.ColB, c.ColA,
		f2u(c.PosX[0]), f2u(c.PosX[1]), f2u(c.PosY[0]), f2u(c.PosY[1]), f2u(c.PosZ[0]), f2u(c.PosZ[1]),
		c.SclX, c.SclY, c.SclZ,
		c.ShR, c.ShG, c.ShB,
	}
}

func ChunkInfoFromWords(w []uint32) ChunkInfo {
	return ChunkInfo{
		ColR: w[0], ColG: w[1], ColB: w[2], ColA: w[3],
		PosX: [2]float32{u2f(w[4]), u2f(w[5])},
		PosY: [2]float32{u2f(w[6]), u2f(w[7])},
		PosZ: [2]float32{u2f(w[8]), u2f(w[9])},
		SclX: w[10], SclY: w[11], SclZ: w[12],
		ShR: w[13], ShG: w[14], ShB: w[15],
	}
}

// Asset is the decoded splat blob handed over by the asset loader.
type Asset struct {
	Name          string
	FormatVersion int
	SplatCount    int
	Format        Format

	PosData   []byte
	OtherData []byte
	SHData    []byte
	ColorData []byte
	ChunkData []ChunkInfo

	DataHash [32]byte
}

// Valid reports whether a store can be created for the asset.
func (a *Asset) Valid() bool {
	return a.Validate() == nil
}

func (a *Asset) Validate() error {
	if a == nil {
		return fmt.Errorf("asset is nil")
	}
	if a.FormatVersion != AssetVersion {
		return fmt.Errorf("asset %q: format version %d, expected %d", a.Name, a.FormatVersion, AssetVersion)
	}
	if a.SplatCount <= 0 || a.SplatCount > MaxSplats {
		return fmt.Errorf("asset %q: splat count %d out of range", a.Name, a.SplatCount)
	}
	if len(a.PosData) == 0 || len(a.OtherData) == 0 || len(a.SHData) == 0 || len(a.ColorData) == 0 {
		return fmt.Errorf("asset %q: missing data blocks", a.Name)
	}
	n := a.SplatCount
	if len(a.PosData) < n*a.Format.PosStride() ||
		len(a.OtherData) < n*a.Format.OtherStride() ||
		len(a.SHData) < n*a.Format.SHStride() {
		return fmt.Errorf("asset %q: data blocks smaller than %d splats", a.Name, n)
	}
	w, h := CalcTextureSize(n)
	if len(a.ColorData) < w*h*a.Format.Color.TexelWords()*4 {
		return fmt.Errorf("asset %q: color data smaller than %dx%d texture", a.Name, w, h)
	}
	if len(a.ChunkData) > 0 && len(a.ChunkData) < (n+ChunkSize-1)/ChunkSize {
		return fmt.Errorf("asset %q: %d chunks for %d splats", a.Name, len(a.ChunkData), n)
	}
	return nil
}

// Quantized reports whether attributes are stored relative to chunk bounds.
func (a *Asset) Quantized() bool {
	return len(a.ChunkData) > 0
}

// ComputeHash refreshes DataHash from the data blocks.
func (a *Asset) ComputeHash() [32]byte {
	h := sha256.New()
	var hdr [16]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(a.FormatVersion))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(a.SplatCount))
	binary.LittleEndian.PutUint32(hdr[8:], a.Format.Word())
	binary.LittleEndian.PutUint32(hdr[12:], uint32(len(a.ChunkData)))
	h.Write(hdr[:])
	h.Write(a.PosData)
	h.Write(a.OtherData)
	h.Write(a.SHData)
	h.Write(a.ColorData)
	for _, c := range a.ChunkData {
		w := c.Words()
		for _, v := range w {
			binary.LittleEndian.PutUint32(hdr[:4], v)
			h.Write(hdr[:4])
		}
	}
	copy(a.DataHash[:], h.Sum(nil))
	return a.DataHash
}

// CalcTextureSize returns the color texture size for a splat count.
func CalcTextureSize(splatCount int) (int, int) {
	width := TextureWidth
	height := (splatCount + width - 1) / width
	if height < 1 {
		height = 1
	}
	const blockHeight = 16
	height = (height + blockHeight - 1) / blockHeight * blockHeight
	return width, height
}

// SplatIndexToPixelIndex maps a splat to its texel. Splats are laid out in
// 16x16 tiles, morton ordered inside each tile.
func SplatIndexToPixelIndex(idx uint32) (x, y uint32) {
	mx, my := decodeMorton2D16x16(idx)
	tilesPerRow := uint32(TextureWidth / 16)
	idx >>= 8
	x = (idx%tilesPerRow)*16 + mx
	y = (idx/tilesPerRow)*16 + my
	return x, y
}

// SplatIndexToTexel is the linear texel index of a splat.
func SplatIndexToTexel(idx uint32) uint32 {
	x, y := SplatIndexToPixelIndex(idx)
	return y*TextureWidth + x
}

func decodeMorton2D16x16(t uint32) (uint32, uint32) {
	t = (t & 0xFF) | ((t & 0xFE) << 7)
	t &= 0x5555
	t = (t ^ (t >> 1)) & 0x3333
	t = (t ^ (t >> 2)) & 0x0f0f
	return t & 0xF, t >> 8
}
