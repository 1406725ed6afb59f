package gpu

import (
	"errors"
	"fmt"

	"github.com/gekko3d/gsplat"
)

// WorkgroupSize is the number of invocations per workgroup of every splat kernel.
const WorkgroupSize = 128

// MaxGroupsPerDim is the per dimension dispatch limit. Larger dispatches
// spill into Y.
const MaxGroupsPerDim = 65535

var (
	ErrSortUnsupported = errors.New("gpu: device cannot sort")
	ErrDeviceReleased  = errors.New("gpu: device released")
	ErrUnboundSlot     = errors.New("gpu: kernel slot not bound")
)

// Buffer is a device resident block of 32 bit words.
type Buffer interface {
	Label() string
	Words() int
	// Release is idempotent.
	Release()
}

// Device records and runs the splat kernels. Calls are synchronous from the
// caller's point of view: a Dispatch is complete before the next call reads
// its results.
type Device interface {
	Name() string
	NewBuffer(label string, words int) (Buffer, error)
	Write(buf Buffer, wordOffset int, data []uint32) error
	// Read is a blocking readback of n words. Meant for small aggregates.
	Read(buf Buffer, wordOffset, n int) ([]uint32, error)
	// Copy copies min(src, dst) words from src to dst.
	Copy(src, dst Buffer) error
	// Clear zeroes buf.
	Clear(buf Buffer) error
	Dispatch(k Kernel, p *Params, b *Bindings, groups [3]uint32) error
	NewSorter() Sorter
	Release()
}

// Groups returns the workgroup counts covering threads invocations, with
// depth layers in Z.
func Groups(threads uint32, depth uint32) [3]uint32 {
	n := (threads + WorkgroupSize - 1) / WorkgroupSize
	if depth == 0 {
		depth = 1
	}
	if n <= MaxGroupsPerDim {
		return [3]uint32{max(n, 1), 1, depth}
	}
	y := (n + MaxGroupsPerDim - 1) / MaxGroupsPerDim
	return [3]uint32{MaxGroupsPerDim, y, depth}
}

// ThreadIndex is the linear invocation index the kernels use for a
// workgroup id, the number of workgroups and the local invocation index.
func ThreadIndex(group, numGroups [3]uint32, local uint32) uint32 {
	return (group[1]*numGroups[0]+group[0])*WorkgroupSize + local
}

// SortResources is scratch state sized for one sort capacity.
type SortResources interface {
	Capacity() uint32
	Release()
}

// SortArgs sorts Count (key, value) pairs in place ascending by key, with
// the value as tie breaker. Entries past Count are left untouched.
type SortArgs struct {
	Keys      Buffer
	Values    Buffer
	Count     uint32
	Resources SortResources
}

type Sorter interface {
	// Valid is false when the device lacks what the sort needs. Dispatch is
	// then a no-op returning ErrSortUnsupported.
	Valid() bool
	LoadResources(count uint32) (SortResources, error)
	Dispatch(args SortArgs) error
}

type invalidSorter struct{}

func (invalidSorter) Valid() bool { return false }
func (invalidSorter) LoadResources(uint32) (SortResources, error) {
	return nil, ErrSortUnsupported
}
func (invalidSorter) Dispatch(SortArgs) error { return ErrSortUnsupported }

// InvalidSorter returns the sorter of a device without sort support.
func InvalidSorter() Sorter { return invalidSorter{} }

// NewDevice opens the backend named by cfg.Backend.
func NewDevice(cfg gsplat.DeviceConfig, log gsplat.Logger) (Device, error) {
	switch cfg.Backend {
	case gsplat.BackendCPU, "":
		return NewCPUDevice(cfg.Workers, log), nil
	case gsplat.BackendWGPU:
		d, err := NewWGPUDevice(cfg, log)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("unknown device backend %q", cfg.Backend)
}
