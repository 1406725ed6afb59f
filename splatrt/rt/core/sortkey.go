package core

import "math"

// FloatToSortableUint maps a float to a uint32 whose unsigned order matches
// the float order, negative values included. Used for sort keys and for
// atomic min/max on floats.
func FloatToSortableUint(f float32) uint32 {
	bits := math.Float32bits(f)
	mask := uint32(-int32(bits>>31)) | 0x80000000
	return bits ^ mask
}

// SortableUintToFloat is the inverse of FloatToSortableUint.
func SortableUintToFloat(v uint32) float32 {
	mask := ((v >> 31) - 1) | 0x80000000
	return math.Float32frombits(v ^ mask)
}
