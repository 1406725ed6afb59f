package splat

import (
	"errors"
	"fmt"

	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/gpu"
)

var (
	ErrInvalidSplatCount = errors.New("splat: invalid splat count")
	ErrQuantizedResize   = errors.New("splat: cannot resize chunk quantized data")
	ErrNoStore           = errors.New("splat: renderer has no splat store")
	ErrIncompatibleStore = errors.New("splat: incompatible destination store")
)

// Store owns the device buffers of one splat data set.
type Store struct {
	dev        gpu.Device
	name       string
	count      int
	format     core.Format
	chunkCount int

	pos    gpu.Buffer
	other  gpu.Buffer
	sh     gpu.Buffer
	color  gpu.Buffer
	chunks gpu.Buffer
}

// NewStore uploads the asset data blocks to dev.
func NewStore(dev gpu.Device, a *core.Asset) (*Store, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	s := &Store{dev: dev, name: a.Name, count: a.SplatCount, format: a.Format, chunkCount: len(a.ChunkData)}
	src := core.SourceFromAsset(a)
	chunks := core.ChunkWords(a.ChunkData)
	blocks := []struct {
		dst   *gpu.Buffer
		label string
		data  []uint32
	}{
		{&s.pos, "SplatPos", src.Pos},
		{&s.other, "SplatOther", src.Other},
		{&s.sh, "SplatSH", src.SH},
		{&s.color, "SplatColor", src.Color},
		{&s.chunks, "SplatChunks", chunks},
	}
	for _, b := range blocks {
		buf, err := dev.NewBuffer(a.Name+"."+b.label, len(b.data))
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("failed to create %s buffer: %w", b.label, err)
		}
		*b.dst = buf
		if err := dev.Write(buf, 0, b.data); err != nil {
			s.Release()
			return nil, fmt.Errorf("failed to upload %s: %w", b.label, err)
		}
	}
	return s, nil
}

// newVeryHighStore allocates zeroed float32 buffers for count splats. It is
// the target layout of resizes.
func newVeryHighStore(dev gpu.Device, name string, count int) (*Store, error) {
	s := &Store{dev: dev, name: name, count: count, format: core.VeryHigh}
	w, h := core.CalcTextureSize(count)
	sizes := []struct {
		dst   *gpu.Buffer
		label string
		words int
	}{
		{&s.pos, "SplatPos", count * core.PosWordsVeryHigh},
		{&s.other, "SplatOther", count * core.OtherWordsVeryHigh},
		{&s.sh, "SplatSH", count * core.SHWordsVeryHigh},
		{&s.color, "SplatColor", w * h * core.VeryHigh.Color.TexelWords()},
		{&s.chunks, "SplatChunks", core.ChunkInfoWords},
	}
	for _, b := range sizes {
		buf, err := dev.NewBuffer(name+"."+b.label, b.words)
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("failed to create %s buffer: %w", b.label, err)
		}
		*b.dst = buf
	}
	return s, nil
}

func (s *Store) Count() int          { return s.count }
func (s *Store) Format() core.Format { return s.format }
func (s *Store) ChunkCount() int     { return s.chunkCount }

// Quantized reports whether positions are stored relative to chunk bounds.
func (s *Store) Quantized() bool { return s.chunkCount > 0 }

// editable reports whether kernels may write positions and rotations in
// place.
func (s *Store) editable() bool {
	return !s.Quantized() && s.format == core.VeryHigh
}

func (s *Store) bind(b *gpu.Bindings) *gpu.Bindings {
	return b.Set(gpu.SlotPos, s.pos).
		Set(gpu.SlotOther, s.other).
		Set(gpu.SlotSH, s.sh).
		Set(gpu.SlotColor, s.color).
		Set(gpu.SlotChunks, s.chunks)
}

func (s *Store) params(p *gpu.Params) {
	p.SplatCount = uint32(s.count)
	p.SplatFormat = s.format.Word()
	p.ChunkCount = uint32(s.chunkCount)
}

// Release frees the device buffers. It is idempotent.
func (s *Store) Release() {
	if s == nil {
		return
	}
	for _, b := range []*gpu.Buffer{&s.pos, &s.other, &s.sh, &s.color, &s.chunks} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
}
