package shaders

import (
	_ "embed"
)

//go:embed splat_utilities.wgsl
var SplatUtilitiesWGSL string

//go:embed bitonic_sort.wgsl
var BitonicSortWGSL string
