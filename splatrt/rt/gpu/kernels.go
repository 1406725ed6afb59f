package gpu

import "fmt"

// Kernel identifies one splat compute entry point.
type Kernel int

const (
	KernelSetIndices Kernel = iota
	KernelCalcDistances
	KernelCalcViewData
	KernelInitEditData
	KernelUpdateEditData
	KernelClearBuffer
	KernelInvertSelection
	KernelSelectAll
	KernelOrBuffers
	KernelSelectionUpdate
	KernelTranslateSelection
	KernelRotateSelection
	KernelScaleSelection
	KernelExportData
	KernelCopySplats
	kernelCount
)

var kernelEntryPoints = [kernelCount]string{
	KernelSetIndices:         "set_indices",
	KernelCalcDistances:      "calc_distances",
	KernelCalcViewData:       "calc_view_data",
	KernelInitEditData:       "init_edit_data",
	KernelUpdateEditData:     "update_edit_data",
	KernelClearBuffer:        "clear_buffer",
	KernelInvertSelection:    "invert_selection",
	KernelSelectAll:          "select_all",
	KernelOrBuffers:          "or_buffers",
	KernelSelectionUpdate:    "selection_update",
	KernelTranslateSelection: "translate_selection",
	KernelRotateSelection:    "rotate_selection",
	KernelScaleSelection:     "scale_selection",
	KernelExportData:         "export_data",
	KernelCopySplats:         "copy_splats",
}

// EntryPoint is the WGSL function name of k.
func (k Kernel) EntryPoint() string {
	if k < 0 || k >= kernelCount {
		return ""
	}
	return kernelEntryPoints[k]
}

func (k Kernel) String() string {
	if e := k.EntryPoint(); e != "" {
		return e
	}
	return fmt.Sprintf("Kernel(%d)", int(k))
}

// Kernels lists every kernel in catalogue order.
func Kernels() []Kernel {
	out := make([]Kernel, kernelCount)
	for i := range out {
		out[i] = Kernel(i)
	}
	return out
}

// Slot is a buffer binding of the splat kernels. The value is the WGSL
// @binding index in group 0. SlotParams is the uniform block and is bound by
// the device itself.
type Slot uint32

const (
	SlotParams Slot = iota
	SlotPos
	SlotOther
	SlotSH
	SlotColor
	SlotChunks
	SlotSelected
	SlotDeleted
	SlotViewL
	SlotViewR
	SlotOrderL
	SlotOrderR
	SlotDistL
	SlotDistR
	SlotCutouts
	SlotPosMouseDown
	SlotOtherMouseDown
	SlotSrc
	SlotDst
	SlotCopyDstPos
	SlotCopyDstOther
	SlotCopyDstSH
	SlotCopyDstColor
	SlotCopyDstDeleted
	SlotExport
	// SlotSelectedAtomic and SlotDstAtomic bind the same buffers as
	// SlotSelected and SlotDst through an atomic view.
	SlotSelectedAtomic
	SlotDstAtomic
	SlotCount
)

// Bindings maps slots to buffers for one dispatch.
type Bindings [SlotCount]Buffer

// Set binds buf at s and returns b for chaining.
func (b *Bindings) Set(s Slot, buf Buffer) *Bindings {
	b[s] = buf
	return b
}

// kernelSlots lists the buffers each entry point reads or writes. It must
// match the bindings the WGSL entry point statically uses, since bind group
// layouts are derived from the shader.
var kernelSlots = [kernelCount][]Slot{
	KernelSetIndices:    {SlotParams, SlotOrderL, SlotOrderR},
	KernelCalcDistances: {SlotParams, SlotPos, SlotChunks, SlotOrderL, SlotOrderR, SlotDistL, SlotDistR},
	KernelCalcViewData: {SlotParams, SlotPos, SlotOther, SlotSH, SlotColor, SlotChunks, SlotDeleted, SlotCutouts,
		SlotViewL, SlotViewR},
	KernelInitEditData: {SlotDst},
	KernelUpdateEditData: {SlotParams, SlotPos, SlotChunks, SlotSelected, SlotDeleted, SlotCutouts,
		SlotDstAtomic},
	KernelClearBuffer:        {SlotParams, SlotDst},
	KernelInvertSelection:    {SlotParams, SlotDeleted, SlotDst},
	KernelSelectAll:          {SlotParams, SlotDeleted, SlotDst},
	KernelOrBuffers:          {SlotParams, SlotSrc, SlotDst},
	KernelSelectionUpdate:    {SlotParams, SlotPos, SlotChunks, SlotDeleted, SlotCutouts, SlotSelectedAtomic},
	KernelTranslateSelection: {SlotParams, SlotPos, SlotSelected, SlotPosMouseDown},
	KernelRotateSelection: {SlotParams, SlotPos, SlotOther, SlotSelected, SlotPosMouseDown,
		SlotOtherMouseDown},
	KernelScaleSelection: {SlotParams, SlotPos, SlotSelected, SlotPosMouseDown},
	KernelExportData: {SlotParams, SlotPos, SlotOther, SlotSH, SlotColor, SlotChunks, SlotDeleted, SlotCutouts,
		SlotExport},
	KernelCopySplats: {SlotParams, SlotPos, SlotOther, SlotSH, SlotColor, SlotChunks, SlotDeleted,
		SlotCopyDstPos, SlotCopyDstOther, SlotCopyDstSH, SlotCopyDstColor, SlotCopyDstDeleted},
}

// Slots returns the bindings k uses, SlotParams included.
func (k Kernel) Slots() []Slot {
	if k < 0 || k >= kernelCount {
		return nil
	}
	return kernelSlots[k]
}

// checkBindings reports the first buffer slot of k left unbound in b.
func checkBindings(k Kernel, b *Bindings) error {
	for _, s := range k.Slots() {
		if s == SlotParams {
			continue
		}
		if b == nil || b[s] == nil {
			return fmt.Errorf("%w: %s slot %d", ErrUnboundSlot, k, s)
		}
	}
	return nil
}
