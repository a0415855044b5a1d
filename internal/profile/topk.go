package profile

import "sort"

// TopKTable tracks approximate category frequencies in bounded memory using
// the space-saving scheme: when the table is full, the least-frequent entry
// is evicted and the newcomer inherits its count as an upper bound.
type TopKTable struct {
	capacity int
	counts   map[string]int64
}

func NewTopKTable(capacity int) *TopKTable {
	if capacity <= 0 {
		capacity = 20
	}
	return &TopKTable{
		capacity: capacity,
		counts:   make(map[string]int64, capacity),
	}
}

func (t *TopKTable) Add(value string) {
	if c, ok := t.counts[value]; ok {
		t.counts[value] = c + 1
		return
	}

	if len(t.counts) < t.capacity {
		t.counts[value] = 1
		return
	}

	minKey := ""
	minCount := int64(-1)
	for k, c := range t.counts {
		if minCount < 0 || c < minCount {
			minKey, minCount = k, c
		}
	}
	delete(t.counts, minKey)
	t.counts[value] = minCount + 1
}

// Top returns entries sorted by descending count, ties broken by value for
// deterministic output.
func (t *TopKTable) Top() []ValueCount {
	out := make([]ValueCount, 0, len(t.counts))
	for v, c := range t.counts {
		out = append(out, ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func (t *TopKTable) Len() int {
	return len(t.counts)
}
