package geometry

import "github.com/stacpipe/stacpipe/internal/field"

// HydrateItem deep-merges defaults under partial using the "overwrite"
// strategy with partial as the overriding layer, producing a complete
// item from a skeletal one.
func HydrateItem(partial, defaults map[string]any) map[string]any {
	return field.DeepMerge(defaults, partial, field.StrategyOverwrite)
}
