package gpu

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/shaders"
)

// wgpuStorageBuffers is the per stage storage binding count the widest
// kernel needs.
const wgpuStorageBuffers = 16

type wgpuBuffer struct {
	label string
	words int
	buf   *wgpu.Buffer
}

func (b *wgpuBuffer) Label() string { return b.label }
func (b *wgpuBuffer) Words() int    { return b.words }
func (b *wgpuBuffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

// WGPUDevice runs the splat kernels through WebGPU compute pipelines built
// from one shader module.
type WGPUDevice struct {
	mu       sync.Mutex
	log      gsplat.Logger
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	module    *wgpu.ShaderModule
	pipelines [kernelCount]*wgpu.ComputePipeline
	params    *wgpu.Buffer
	released  bool
}

func powerPreference(name string) wgpu.PowerPreference {
	if name == "low_power" {
		return wgpu.PowerPreferenceLowPower
	}
	return wgpu.PowerPreferenceHighPerformance
}

// NewWGPUDevice requests an adapter and a device with enough storage
// bindings for the splat kernels. Pipelines are created on first use.
func NewWGPUDevice(cfg gsplat.DeviceConfig, log gsplat.Logger) (*WGPUDevice, error) {
	log = gsplat.OrNop(log)
	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: powerPreference(cfg.PowerPreference),
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}

	limits := wgpu.DefaultLimits()
	supported := adapter.GetLimits().Limits
	if supported.MaxStorageBuffersPerShaderStage < wgpuStorageBuffers {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("adapter supports %d storage buffers per stage, need %d",
			supported.MaxStorageBuffersPerShaderStage, wgpuStorageBuffers)
	}
	limits.MaxStorageBuffersPerShaderStage = wgpuStorageBuffers
	limits.MaxStorageBufferBindingSize = supported.MaxStorageBufferBindingSize
	limits.MaxBufferSize = supported.MaxBufferSize
	limits.MaxComputeWorkgroupsPerDimension = supported.MaxComputeWorkgroupsPerDimension

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          "Splat Device",
		RequiredLimits: &wgpu.RequiredLimits{Limits: limits},
	})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("failed to request device: %w", err)
	}

	d := &WGPUDevice{
		log:      log,
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    device.GetQueue(),
	}
	d.module, err = device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "SplatUtilities",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.SplatUtilitiesWGSL},
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("failed to create splat shader module: %w", err)
	}
	d.params, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "SplatParams",
		Size:  ParamsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("failed to create params buffer: %w", err)
	}
	log.Infof("wgpu device ready, storage buffers per stage %d", limits.MaxStorageBuffersPerShaderStage)
	return d, nil
}

func (d *WGPUDevice) Name() string { return "wgpu" }

func (d *WGPUDevice) alive() error {
	if d.released {
		return ErrDeviceReleased
	}
	return nil
}

func wgpuData(b Buffer) (*wgpuBuffer, error) {
	wb, ok := b.(*wgpuBuffer)
	if !ok || wb == nil {
		return nil, fmt.Errorf("buffer %T does not belong to the wgpu device", b)
	}
	if wb.buf == nil {
		return nil, fmt.Errorf("buffer %s used after release", wb.label)
	}
	return wb, nil
}

func (d *WGPUDevice) NewBuffer(label string, words int) (Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alive(); err != nil {
		return nil, err
	}
	if words <= 0 {
		return nil, fmt.Errorf("buffer %s: invalid size %d", label, words)
	}
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(words) * 4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %s: %w", label, err)
	}
	return &wgpuBuffer{label: label, words: words, buf: buf}, nil
}

func wordsToBytes(w []uint32) []byte {
	b := make([]byte, len(w)*4)
	for i, v := range w {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	return b
}

func (d *WGPUDevice) Write(buf Buffer, wordOffset int, data []uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alive(); err != nil {
		return err
	}
	wb, err := wgpuData(buf)
	if err != nil {
		return err
	}
	if wordOffset < 0 || wordOffset+len(data) > wb.words {
		return fmt.Errorf("write of %d words at %d overflows %s", len(data), wordOffset, wb.label)
	}
	if len(data) == 0 {
		return nil
	}
	d.queue.WriteBuffer(wb.buf, uint64(wordOffset)*4, wordsToBytes(data))
	return nil
}

// Read copies the range into a mappable staging buffer and waits for it.
func (d *WGPUDevice) Read(buf Buffer, wordOffset, n int) ([]uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alive(); err != nil {
		return nil, err
	}
	wb, err := wgpuData(buf)
	if err != nil {
		return nil, err
	}
	if wordOffset < 0 || n < 0 || wordOffset+n > wb.words {
		return nil, fmt.Errorf("read of %d words at %d overflows %s", n, wordOffset, wb.label)
	}
	if n == 0 {
		return []uint32{}, nil
	}
	size := uint64(n) * 4
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: wb.label + " Readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readback buffer: %w", err)
	}
	defer staging.Release()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %w", err)
	}
	if err := encoder.CopyBufferToBuffer(wb.buf, uint64(wordOffset)*4, staging, 0, size); err != nil {
		encoder.Release()
		return nil, fmt.Errorf("failed to copy %s for readback: %w", wb.label, err)
	}
	if err := d.submit(encoder); err != nil {
		return nil, err
	}

	var status wgpu.BufferMapAsyncStatus
	done := false
	staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		done = true
	})
	for !done {
		d.device.Poll(true, nil)
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("failed to map %s readback: status %d", wb.label, status)
	}
	data := staging.GetMappedRange(0, uint(size))
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	staging.Unmap()
	return out, nil
}

func (d *WGPUDevice) submit(encoder *wgpu.CommandEncoder) error {
	cmd, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		return fmt.Errorf("failed to finish command encoder: %w", err)
	}
	d.queue.Submit(cmd)
	cmd.Release()
	return nil
}

func (d *WGPUDevice) Copy(src, dst Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alive(); err != nil {
		return err
	}
	s, err := wgpuData(src)
	if err != nil {
		return err
	}
	t, err := wgpuData(dst)
	if err != nil {
		return err
	}
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}
	n := uint64(min(s.words, t.words)) * 4
	if err := encoder.CopyBufferToBuffer(s.buf, 0, t.buf, 0, n); err != nil {
		encoder.Release()
		return fmt.Errorf("failed to copy %s to %s: %w", s.label, t.label, err)
	}
	return d.submit(encoder)
}

func (d *WGPUDevice) Clear(buf Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alive(); err != nil {
		return err
	}
	wb, err := wgpuData(buf)
	if err != nil {
		return err
	}
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}
	if err := encoder.ClearBuffer(wb.buf, 0, uint64(wb.words)*4); err != nil {
		encoder.Release()
		return fmt.Errorf("failed to clear %s: %w", wb.label, err)
	}
	return d.submit(encoder)
}

func (d *WGPUDevice) pipeline(k Kernel) (*wgpu.ComputePipeline, error) {
	if p := d.pipelines[k]; p != nil {
		return p, nil
	}
	p, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: k.String(),
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     d.module,
			EntryPoint: k.EntryPoint(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s pipeline: %w", k, err)
	}
	d.pipelines[k] = p
	d.log.Debugf("created pipeline %s", k)
	return p, nil
}

// Dispatch uploads p, binds the kernel's slots and submits one compute pass.
func (d *WGPUDevice) Dispatch(k Kernel, p *Params, b *Bindings, groups [3]uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alive(); err != nil {
		return err
	}
	if k < 0 || k >= kernelCount {
		return fmt.Errorf("wgpu device: unknown kernel %s", k)
	}
	if err := checkBindings(k, b); err != nil {
		return err
	}
	pipe, err := d.pipeline(k)
	if err != nil {
		return err
	}
	if p == nil {
		p = &Params{}
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(k.Slots()))
	for _, s := range k.Slots() {
		if s == SlotParams {
			entries = append(entries, wgpu.BindGroupEntry{Binding: uint32(s), Buffer: d.params, Size: wgpu.WholeSize})
			continue
		}
		wb, err := wgpuData(b[s])
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		entries = append(entries, wgpu.BindGroupEntry{Binding: uint32(s), Buffer: wb.buf, Size: wgpu.WholeSize})
	}
	layout := pipe.GetBindGroupLayout(0)
	defer layout.Release()
	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   k.String(),
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s bind group: %w", k, err)
	}
	defer bg.Release()

	d.queue.WriteBuffer(d.params, 0, p.Bytes())

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipe)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(groups[0], groups[1], groups[2])
	if err := pass.End(); err != nil {
		encoder.Release()
		return fmt.Errorf("%s pass end failed: %w", k, err)
	}
	return d.submit(encoder)
}

func (d *WGPUDevice) NewSorter() Sorter {
	s, err := newWGPUSorter(d)
	if err != nil {
		d.log.Warnf("gpu sort unavailable: %v", err)
		return InvalidSorter()
	}
	return s
}

func (d *WGPUDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	d.released = true
	for i, p := range d.pipelines {
		if p != nil {
			p.Release()
			d.pipelines[i] = nil
		}
	}
	if d.params != nil {
		d.params.Release()
	}
	if d.module != nil {
		d.module.Release()
	}
	if d.queue != nil {
		d.queue.Release()
	}
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
	d.log.Debugf("wgpu device released")
}
