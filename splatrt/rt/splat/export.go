package splat

import (
	"fmt"

	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/gpu"
)

// ExportData writes one core.ExportFloats record per splat into dst.
// Deleted and cut splats are written with the skip flag set. With bake the
// renderer transform is applied so records are in world units.
func (r *Renderer) ExportData(dst gpu.Buffer, bake bool) error {
	if !r.ensureEdit() {
		return ErrNoStore
	}
	n := r.store.count
	if dst == nil || dst.Words() < n*core.ExportFloats {
		return fmt.Errorf("export of %d splats needs %d words", n, n*core.ExportFloats)
	}
	p, b, err := r.frame()
	if err != nil {
		return err
	}
	if bake {
		p.CopyFlags = gpu.CopyFlagBake
		p.CopyRot = core.QuatToVec4(r.Transform.Rotation.Normalize())
		p.CopyScale = r.Transform.Scale
	}
	b.Set(gpu.SlotExport, dst)
	if err := r.dev.Dispatch(gpu.KernelExportData, p, b, gpu.Groups(uint32(n), 1)); err != nil {
		return fmt.Errorf("export data: %w", err)
	}
	return nil
}

// ExportSplats exports into a scratch buffer and returns the records of
// the splats that are neither deleted nor cut.
func (r *Renderer) ExportSplats(bake bool) ([]core.ExportSplat, error) {
	if !r.ensureEdit() {
		return nil, ErrNoStore
	}
	n := r.store.count
	buf, err := r.dev.NewBuffer(r.Name+".Export", n*core.ExportFloats)
	if err != nil {
		return nil, fmt.Errorf("failed to create export buffer: %w", err)
	}
	defer buf.Release()
	if err := r.ExportData(buf, bake); err != nil {
		return nil, err
	}
	words, err := r.dev.Read(buf, 0, n*core.ExportFloats)
	if err != nil {
		return nil, err
	}
	f := core.WordsToF32(words)
	out := make([]core.ExportSplat, 0, n)
	for i := 0; i < n; i++ {
		e := core.ExportSplatFromFloats(f[i*core.ExportFloats:])
		if e.Skipped() {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
