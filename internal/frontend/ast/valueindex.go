package ast

// ValueIndex is an ordered map from a MatchValue to the CSV record that
// produced it, backing CSV value-set (attr = "basename") and multi-value
// eq/neq tests. Records are kept in file order; Record returns the first
// (and, for a well-formed CSV, only)
// backing record whose column matches, so that "eq" comparisons can surface
// the disambiguating record rather than just a boolean.
type ValueIndex struct {
	entries []indexEntry
	byValue map[MatchValue]int // MatchValue -> index into entries, first-wins
}

type indexEntry struct {
	value  MatchValue
	record []string
}

// NewValueIndex builds an empty index; use Add to populate it in file order.
func NewValueIndex() *ValueIndex {
	return &ValueIndex{byValue: make(map[MatchValue]int)}
}

// Add inserts a value and its backing record. If value already exists, the
// existing (first) mapping wins and the new record is not added, matching
// the original CSV index's first-match-wins de-duplication.
func (idx *ValueIndex) Add(value MatchValue, record []string) {
	if _, ok := idx.byValue[value]; ok {
		return
	}
	idx.byValue[value] = len(idx.entries)
	idx.entries = append(idx.entries, indexEntry{value: value, record: record})
}

// Contains reports whether value is present in the set.
func (idx *ValueIndex) Contains(value MatchValue) bool {
	_, ok := idx.byValue[value]
	return ok
}

// Record returns the backing record for value, if present.
func (idx *ValueIndex) Record(value MatchValue) ([]string, bool) {
	i, ok := idx.byValue[value]
	if !ok {
		return nil, false
	}
	return idx.entries[i].record, true
}

// Len returns the number of distinct values in the set.
func (idx *ValueIndex) Len() int { return len(idx.entries) }

// Values returns the set's values in file order.
func (idx *ValueIndex) Values() []MatchValue {
	out := make([]MatchValue, len(idx.entries))
	for i, e := range idx.entries {
		out[i] = e.value
	}
	return out
}

// Max and Min return the greatest/least value in the set by Compare order,
// backing lt/leq/gt/geq against a value set: the original matcher compares
// against the set's extremum rather than iterating membership.
func (idx *ValueIndex) Max() (MatchValue, bool) {
	return idx.extremum(1)
}

func (idx *ValueIndex) Min() (MatchValue, bool) {
	return idx.extremum(-1)
}

func (idx *ValueIndex) extremum(better int) (MatchValue, bool) {
	if len(idx.entries) == 0 {
		return MatchValue{}, false
	}
	best := idx.entries[0].value
	for _, e := range idx.entries[1:] {
		if e.value.Compare(best) == better {
			best = e.value
		}
	}
	return best, true
}
