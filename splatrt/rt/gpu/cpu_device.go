package gpu

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gekko3d/gsplat"
)

type cpuBuffer struct {
	label string
	data  []uint32
}

func (b *cpuBuffer) Label() string { return b.label }
func (b *cpuBuffer) Words() int    { return len(b.data) }
func (b *cpuBuffer) Release()      { b.data = nil }

// CPUDevice runs the splat kernels on host memory, one workgroup range per
// lane. It is the reference backend and what the pipeline tests run on.
type CPUDevice struct {
	mu       sync.Mutex
	workers  int
	log      gsplat.Logger
	released bool
}

// NewCPUDevice returns a device with the given number of lanes; workers <= 0
// means GOMAXPROCS.
func NewCPUDevice(workers int, log gsplat.Logger) *CPUDevice {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &CPUDevice{workers: workers, log: gsplat.OrNop(log)}
}

func (d *CPUDevice) Name() string { return fmt.Sprintf("cpu(%d)", d.workers) }

func (d *CPUDevice) alive() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrDeviceReleased
	}
	return nil
}

func (d *CPUDevice) NewBuffer(label string, words int) (Buffer, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	if words <= 0 {
		return nil, fmt.Errorf("buffer %s: invalid size %d", label, words)
	}
	return &cpuBuffer{label: label, data: make([]uint32, words)}, nil
}

func cpuData(b Buffer) ([]uint32, error) {
	cb, ok := b.(*cpuBuffer)
	if !ok || cb == nil {
		return nil, fmt.Errorf("buffer %T does not belong to the cpu device", b)
	}
	if cb.data == nil {
		return nil, fmt.Errorf("buffer %s used after release", cb.label)
	}
	return cb.data, nil
}

func (d *CPUDevice) Write(buf Buffer, wordOffset int, data []uint32) error {
	if err := d.alive(); err != nil {
		return err
	}
	dst, err := cpuData(buf)
	if err != nil {
		return err
	}
	if wordOffset < 0 || wordOffset+len(data) > len(dst) {
		return fmt.Errorf("write of %d words at %d overflows %s", len(data), wordOffset, buf.Label())
	}
	copy(dst[wordOffset:], data)
	return nil
}

func (d *CPUDevice) Read(buf Buffer, wordOffset, n int) ([]uint32, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	src, err := cpuData(buf)
	if err != nil {
		return nil, err
	}
	if wordOffset < 0 || n < 0 || wordOffset+n > len(src) {
		return nil, fmt.Errorf("read of %d words at %d overflows %s", n, wordOffset, buf.Label())
	}
	out := make([]uint32, n)
	copy(out, src[wordOffset:])
	return out, nil
}

func (d *CPUDevice) Copy(src, dst Buffer) error {
	if err := d.alive(); err != nil {
		return err
	}
	s, err := cpuData(src)
	if err != nil {
		return err
	}
	t, err := cpuData(dst)
	if err != nil {
		return err
	}
	copy(t, s)
	return nil
}

func (d *CPUDevice) Clear(buf Buffer) error {
	if err := d.alive(); err != nil {
		return err
	}
	b, err := cpuData(buf)
	if err != nil {
		return err
	}
	clear(b)
	return nil
}

// Dispatch runs k over groups. Each Z layer is split into contiguous thread
// ranges, one per lane.
func (d *CPUDevice) Dispatch(k Kernel, p *Params, b *Bindings, groups [3]uint32) error {
	if err := d.alive(); err != nil {
		return err
	}
	if k < 0 || k >= kernelCount || cpuKernels[k] == nil {
		return fmt.Errorf("cpu device: unknown kernel %s", k)
	}
	fn := cpuKernels[k]
	if err := checkBindings(k, b); err != nil {
		return err
	}
	inv, err := newInvocation(k, p, b)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}

	threads := groups[0] * groups[1] * WorkgroupSize
	lanes := uint32(d.workers)
	per := (threads + lanes - 1) / lanes
	per = (per + WorkgroupSize - 1) / WorkgroupSize * WorkgroupSize

	var g errgroup.Group
	g.SetLimit(d.workers)
	for z := uint32(0); z < groups[2]; z++ {
		for start := uint32(0); start < threads; start += per {
			end := min(start+per, threads)
			g.Go(func() error {
				for idx := start; idx < end; idx++ {
					fn(inv, idx, z)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

func (d *CPUDevice) NewSorter() Sorter {
	return &cpuSorter{dev: d}
}

func (d *CPUDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.released {
		d.log.Debugf("cpu device released")
	}
	d.released = true
}
