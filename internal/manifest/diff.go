package manifest

// Delta is the change between two pair sets.
type Delta struct {
	Removed []FilePair
	Added   []FilePair
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool {
	return len(d.Removed) == 0 && len(d.Added) == 0
}

// Diff computes Removed = old - new and Added = new - old by pair identity.
// Both slices come back sorted.
func Diff(old, new []FilePair) Delta {
	oldSet := make(map[FilePair]struct{}, len(old))
	for _, p := range old {
		oldSet[p] = struct{}{}
	}
	newSet := make(map[FilePair]struct{}, len(new))
	for _, p := range new {
		newSet[p] = struct{}{}
	}

	var d Delta
	for p := range oldSet {
		if _, ok := newSet[p]; !ok {
			d.Removed = append(d.Removed, p)
		}
	}
	for p := range newSet {
		if _, ok := oldSet[p]; !ok {
			d.Added = append(d.Added, p)
		}
	}

	SortPairs(d.Removed)
	SortPairs(d.Added)

	return d
}
