package config

// mergeMaps deep-merges override on top of base and returns a new map.
// Scalars and slices in override replace the base entry outright; nested
// maps are merged key-by-key. This generalizes the teacher's
// builtin-vs-user "user entries override builtin by key" pattern
// (mergeAgents/mergeMCPServers/mergeChains/mergeLLMProviders) from
// slices-of-named-structs to an arbitrarily nested settings tree, since
// this daemon's config is a tree of scalar knobs rather than named
// resource lists.
func mergeMaps(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		baseVal, exists := out[k]
		if !exists {
			out[k] = v
			continue
		}
		baseMap, baseIsMap := baseVal.(map[string]any)
		overrideMap, overrideIsMap := v.(map[string]any)
		if baseIsMap && overrideIsMap {
			out[k] = mergeMaps(baseMap, overrideMap)
			continue
		}
		out[k] = v
	}
	return out
}
