package field

// Strategy names a deep-merge conflict-resolution rule.
type Strategy string

const (
	// StrategyOverwrite lets the overlay win at scalar collisions; maps
	// recurse; new overlay keys are added.
	StrategyOverwrite Strategy = "overwrite"
	// StrategyKeepExisting lets base win at scalar collisions; maps
	// recurse; new overlay keys are still added.
	StrategyKeepExisting Strategy = "keep_existing"
	// StrategyUpdateOnly only updates keys already present in base, at
	// every depth; overlay keys absent from base are ignored entirely.
	StrategyUpdateOnly Strategy = "update_only"
)

// DeepMerge recursively merges overlay into a copy of base according to
// strategy and returns the result. Neither base nor overlay is mutated.
func DeepMerge(base, overlay map[string]any, strategy Strategy) map[string]any {
	return deepMergeValue(base, overlay, strategy).(map[string]any)
}

func deepMergeValue(base, overlay any, strategy Strategy) any {
	baseMap, baseIsMap := base.(map[string]any)
	overlayMap, overlayIsMap := overlay.(map[string]any)

	if !baseIsMap || !overlayIsMap {
		return mergeScalar(base, overlay, strategy)
	}

	out := make(map[string]any, len(baseMap))
	for k, v := range baseMap {
		out[k] = v
	}

	for k, overlayVal := range overlayMap {
		baseVal, existsInBase := baseMap[k]

		switch strategy {
		case StrategyUpdateOnly:
			if !existsInBase {
				continue
			}
			out[k] = deepMergeValue(baseVal, overlayVal, strategy)
		case StrategyKeepExisting:
			if !existsInBase {
				out[k] = overlayVal
				continue
			}
			out[k] = deepMergeValue(baseVal, overlayVal, strategy)
		default: // StrategyOverwrite
			if !existsInBase {
				out[k] = overlayVal
				continue
			}
			out[k] = deepMergeValue(baseVal, overlayVal, strategy)
		}
	}

	return out
}

func mergeScalar(base, overlay any, strategy Strategy) any {
	switch strategy {
	case StrategyKeepExisting:
		if base != nil {
			return base
		}
		return overlay
	case StrategyUpdateOnly:
		// mergeScalar is only reached when at least one side is not a
		// map, i.e. base is a scalar being replaced; update_only still
		// updates it since the key already existed in base.
		return overlay
	default: // StrategyOverwrite
		return overlay
	}
}
