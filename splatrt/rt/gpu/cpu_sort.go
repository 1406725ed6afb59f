package gpu

import (
	"fmt"
	"math/bits"

	"golang.org/x/sync/errgroup"
)

type cpuSortResources struct {
	keys, values []uint32
}

func (r *cpuSortResources) Capacity() uint32 { return uint32(len(r.keys)) }
func (r *cpuSortResources) Release()         { r.keys, r.values = nil, nil }

// cpuSorter is a stable LSD radix sort with 8 bit digits. Value digits go
// first so equal keys end up ordered by value.
type cpuSorter struct {
	dev *CPUDevice
}

func (s *cpuSorter) Valid() bool { return s.dev.alive() == nil }

func (s *cpuSorter) LoadResources(count uint32) (SortResources, error) {
	if err := s.dev.alive(); err != nil {
		return nil, err
	}
	return &cpuSortResources{keys: make([]uint32, count), values: make([]uint32, count)}, nil
}

const radixBuckets = 256

func (s *cpuSorter) Dispatch(args SortArgs) error {
	if err := s.dev.alive(); err != nil {
		return err
	}
	if args.Count <= 1 {
		return nil
	}
	res, ok := args.Resources.(*cpuSortResources)
	if !ok || res == nil || res.Capacity() < args.Count {
		return fmt.Errorf("sort of %d pairs: missing or undersized resources", args.Count)
	}
	keys, err := cpuData(args.Keys)
	if err != nil {
		return err
	}
	values, err := cpuData(args.Values)
	if err != nil {
		return err
	}
	n := args.Count
	if uint32(len(keys)) < n || uint32(len(values)) < n {
		return fmt.Errorf("sort of %d pairs overflows buffers", n)
	}

	var maxValue uint32
	for _, v := range values[:n] {
		maxValue = max(maxValue, v)
	}
	valuePasses := (bits.Len32(maxValue) + 7) / 8

	ka, va := keys[:n], values[:n]
	kb, vb := res.keys[:n], res.values[:n]
	for pass := 0; pass < valuePasses+4; pass++ {
		byValue := pass < valuePasses
		shift := uint(pass) * 8
		if !byValue {
			shift = uint(pass-valuePasses) * 8
		}
		moved, err := s.scatter(ka, va, kb, vb, shift, byValue)
		if err != nil {
			return err
		}
		if moved {
			ka, kb = kb, ka
			va, vb = vb, va
		}
	}
	if &ka[0] != &keys[0] {
		copy(keys[:n], ka)
		copy(values[:n], va)
	}
	return nil
}

// scatter runs one counting pass from (ka, va) into (kb, vb). It reports
// false and leaves the output untouched when every element shares the digit.
func (s *cpuSorter) scatter(ka, va, kb, vb []uint32, shift uint, byValue bool) (bool, error) {
	n := uint32(len(ka))
	lanes := uint32(s.dev.workers)
	per := max((n+lanes-1)/lanes, 1024)
	lanes = (n + per - 1) / per

	digit := func(i uint32) uint32 {
		if byValue {
			return (va[i] >> shift) & 0xFF
		}
		return (ka[i] >> shift) & 0xFF
	}

	hist := make([][radixBuckets]uint32, lanes)
	var count errgroup.Group
	count.SetLimit(s.dev.workers)
	for l := uint32(0); l < lanes; l++ {
		count.Go(func() error {
			h := &hist[l]
			for i := l * per; i < min((l+1)*per, n); i++ {
				h[digit(i)]++
			}
			return nil
		})
	}
	if err := count.Wait(); err != nil {
		return false, err
	}

	// offsets in bucket major, lane minor order keep the pass stable
	offsets := make([][radixBuckets]uint32, lanes)
	var sum uint32
	for b := 0; b < radixBuckets; b++ {
		var total uint32
		for l := uint32(0); l < lanes; l++ {
			offsets[l][b] = sum
			sum += hist[l][b]
			total += hist[l][b]
		}
		if total == n {
			return false, nil
		}
	}

	var place errgroup.Group
	place.SetLimit(s.dev.workers)
	for l := uint32(0); l < lanes; l++ {
		place.Go(func() error {
			off := &offsets[l]
			for i := l * per; i < min((l+1)*per, n); i++ {
				d := digit(i)
				kb[off[d]] = ka[i]
				vb[off[d]] = va[i]
				off[d]++
			}
			return nil
		})
	}
	return true, place.Wait()
}
