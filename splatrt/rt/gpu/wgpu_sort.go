package gpu

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/gsplat/splatrt/rt/shaders"
)

// Each bitonic step reads its own 16 byte SortParams from a slot aligned to
// the uniform offset alignment.
const sortParamsStride = 256

type bitonicStep struct{ j, k uint32 }

func bitonicSteps(padded uint32) []bitonicStep {
	var steps []bitonicStep
	for k := uint32(2); k <= padded; k <<= 1 {
		for j := k >> 1; j > 0; j >>= 1 {
			steps = append(steps, bitonicStep{j: j, k: k})
		}
	}
	return steps
}

func nextPow2(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len32(n-1)
}

type wgpuSortResources struct {
	capacity uint32
	padded   uint32
	keys     *wgpu.Buffer
	values   *wgpu.Buffer
	params   *wgpu.Buffer
	// groups[0] is the fill pass, the rest follow bitonicSteps order.
	groups []*wgpu.BindGroup
}

func (r *wgpuSortResources) Capacity() uint32 { return r.capacity }

func (r *wgpuSortResources) Release() {
	for _, g := range r.groups {
		g.Release()
	}
	r.groups = nil
	for _, b := range []*wgpu.Buffer{r.keys, r.values, r.params} {
		if b != nil {
			b.Release()
		}
	}
	r.keys, r.values, r.params = nil, nil, nil
}

// wgpuSorter sorts in a power of two scratch copy of the pairs with a
// bitonic network, then copies the first Count pairs back.
type wgpuSorter struct {
	dev    *WGPUDevice
	module *wgpu.ShaderModule
	fill   *wgpu.ComputePipeline
	step   *wgpu.ComputePipeline
}

func newWGPUSorter(d *WGPUDevice) (*wgpuSorter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alive(); err != nil {
		return nil, err
	}
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "BitonicSort",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.BitonicSortWGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sort shader module: %w", err)
	}
	s := &wgpuSorter{dev: d, module: module}
	for _, e := range []struct {
		name string
		dst  **wgpu.ComputePipeline
	}{{"bitonic_fill", &s.fill}, {"bitonic_step", &s.step}} {
		*e.dst, err = d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label: e.name,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: e.name,
			},
		})
		if err != nil {
			s.release()
			return nil, fmt.Errorf("failed to create %s pipeline: %w", e.name, err)
		}
	}
	return s, nil
}

func (s *wgpuSorter) release() {
	if s.fill != nil {
		s.fill.Release()
	}
	if s.step != nil {
		s.step.Release()
	}
	s.module.Release()
}

func (s *wgpuSorter) Valid() bool {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return s.dev.alive() == nil && s.step != nil
}

func sortParamsBytes(j, k, count, padded uint32) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:], j)
	binary.LittleEndian.PutUint32(b[4:], k)
	binary.LittleEndian.PutUint32(b[8:], count)
	binary.LittleEndian.PutUint32(b[12:], padded)
	return b
}

func (s *wgpuSorter) LoadResources(count uint32) (SortResources, error) {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alive(); err != nil {
		return nil, err
	}
	padded := nextPow2(max(count, 2))
	steps := bitonicSteps(padded)
	r := &wgpuSortResources{capacity: count, padded: padded}

	var err error
	newBuf := func(label string, size uint64, usage wgpu.BufferUsage) *wgpu.Buffer {
		if err != nil {
			return nil
		}
		var b *wgpu.Buffer
		b, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{Label: label, Size: size, Usage: usage})
		return b
	}
	storage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
	r.keys = newBuf("SortKeys", uint64(padded)*4, storage)
	r.values = newBuf("SortValues", uint64(padded)*4, storage)
	r.params = newBuf("SortParams", uint64(len(steps)+1)*sortParamsStride,
		wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	if err != nil {
		r.Release()
		return nil, fmt.Errorf("failed to create sort buffers: %w", err)
	}

	for i, st := range steps {
		d.queue.WriteBuffer(r.params, uint64(i+1)*sortParamsStride, sortParamsBytes(st.j, st.k, 0, padded))
	}
	for i := 0; i <= len(steps); i++ {
		pipe := s.step
		if i == 0 {
			pipe = s.fill
		}
		layout := pipe.GetBindGroupLayout(0)
		g, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  "BitonicSort",
			Layout: layout,
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: r.params, Offset: uint64(i) * sortParamsStride, Size: 16},
				{Binding: 1, Buffer: r.keys, Size: wgpu.WholeSize},
				{Binding: 2, Buffer: r.values, Size: wgpu.WholeSize},
			},
		})
		layout.Release()
		if err != nil {
			r.Release()
			return nil, fmt.Errorf("failed to create sort bind group: %w", err)
		}
		r.groups = append(r.groups, g)
	}
	d.log.Debugf("sort resources for %d pairs, %d steps", count, len(steps))
	return r, nil
}

func (s *wgpuSorter) Dispatch(args SortArgs) error {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alive(); err != nil {
		return err
	}
	if args.Count <= 1 {
		return nil
	}
	res, ok := args.Resources.(*wgpuSortResources)
	if !ok || res == nil || res.keys == nil || res.capacity < args.Count {
		return fmt.Errorf("sort of %d pairs: missing or undersized resources", args.Count)
	}
	keys, err := wgpuData(args.Keys)
	if err != nil {
		return err
	}
	values, err := wgpuData(args.Values)
	if err != nil {
		return err
	}
	if uint32(keys.words) < args.Count || uint32(values.words) < args.Count {
		return fmt.Errorf("sort of %d pairs overflows buffers", args.Count)
	}

	n := uint64(args.Count) * 4
	d.queue.WriteBuffer(res.params, 0, sortParamsBytes(0, 0, args.Count, res.padded))

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}
	if err := encoder.CopyBufferToBuffer(keys.buf, 0, res.keys, 0, n); err != nil {
		encoder.Release()
		return fmt.Errorf("failed to stage sort keys: %w", err)
	}
	if err := encoder.CopyBufferToBuffer(values.buf, 0, res.values, 0, n); err != nil {
		encoder.Release()
		return fmt.Errorf("failed to stage sort values: %w", err)
	}

	groups := Groups(res.padded, 1)
	pass := encoder.BeginComputePass(nil)
	for i, g := range res.groups {
		if i == 0 {
			pass.SetPipeline(s.fill)
		} else if i == 1 {
			pass.SetPipeline(s.step)
		}
		pass.SetBindGroup(0, g, nil)
		pass.DispatchWorkgroups(groups[0], groups[1], 1)
	}
	if err := pass.End(); err != nil {
		encoder.Release()
		return fmt.Errorf("sort pass end failed: %w", err)
	}

	if err := encoder.CopyBufferToBuffer(res.keys, 0, keys.buf, 0, n); err != nil {
		encoder.Release()
		return fmt.Errorf("failed to copy sorted keys: %w", err)
	}
	if err := encoder.CopyBufferToBuffer(res.values, 0, values.buf, 0, n); err != nil {
		encoder.Release()
		return fmt.Errorf("failed to copy sorted values: %w", err)
	}
	return d.submit(encoder)
}
