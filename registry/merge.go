package registry

// Merge combines registrations discovered in the current pass with those
// already recorded for the same contract. Discovered registrations are
// authoritative: an existing entry is kept only when its name was not
// discovered again. Neither input is modified.
//
// Existing entries survive a partial build that did not revisit their
// source, which is what makes incremental generation safe.
func Merge(discovered, existing Registrations) Registrations {
	merged := make(Registrations, len(discovered)+len(existing))
	for name, reg := range discovered {
		merged[name] = reg
	}
	for name, reg := range existing {
		if _, ok := merged[name]; !ok {
			merged[name] = reg
		}
	}
	return merged
}
