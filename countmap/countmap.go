// Package countmap implements the string->count accumulator shared by every
// participant: an open-addressing hash table that only ever grows, tuned for
// the single-writer ingestion loop.
package countmap

// Entry is one accumulated (key, count) pair.
type Entry struct {
	Key   string
	Count int64
}

const (
	minCapacity = 8
	// capacity doubles once size/capacity passes this threshold
	maxLoadNum, maxLoadDen = 3, 4
)

// Map counts occurrences per string key. A Map instance is owned by exactly
// one goroutine; it is not safe for concurrent use.
type Map struct {
	slots []slot
	size  int
}

type slot struct {
	key   string
	count int64
	used  bool
}

// New returns an empty map sized for roughly capacityHint entries.
func New(capacityHint int) *Map {
	capacity := minCapacity
	for capacity*maxLoadNum < capacityHint*maxLoadDen {
		capacity <<= 1
	}
	return &Map{slots: make([]slot, capacity)}
}

// fnv64a, inlined to avoid a hasher allocation per key.
func fnv64a(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// Increment adds delta to key's count, inserting the key with value delta if
// it is absent. A zero delta is a no-op.
func (m *Map) Increment(key string, delta int64) {
	if delta == 0 {
		return
	}
	if (m.size+1)*maxLoadDen > len(m.slots)*maxLoadNum {
		m.grow()
	}
	mask := uint64(len(m.slots) - 1)
	i := fnv64a(key) & mask
	for m.slots[i].used {
		if m.slots[i].key == key {
			m.slots[i].count += delta
			return
		}
		i = (i + 1) & mask
	}
	m.slots[i] = slot{key: key, count: delta, used: true}
	m.size++
}

func (m *Map) grow() {
	old := m.slots
	m.slots = make([]slot, len(old)*2)
	mask := uint64(len(m.slots) - 1)
	for _, s := range old {
		if !s.used {
			continue
		}
		i := fnv64a(s.key) & mask
		for m.slots[i].used {
			i = (i + 1) & mask
		}
		m.slots[i] = s
	}
}

// Get returns the count for key and whether the key is present.
func (m *Map) Get(key string) (int64, bool) {
	mask := uint64(len(m.slots) - 1)
	i := fnv64a(key) & mask
	for m.slots[i].used {
		if m.slots[i].key == key {
			return m.slots[i].count, true
		}
		i = (i + 1) & mask
	}
	return 0, false
}

// Len returns the number of distinct keys.
func (m *Map) Len() int { return m.size }

// Entries exports all pairs. The order is unspecified but stable for a given
// map state; callers that need a total order go through rank.Top.
func (m *Map) Entries() []Entry {
	out := make([]Entry, 0, m.size)
	for _, s := range m.slots {
		if s.used {
			out = append(out, Entry{Key: s.key, Count: s.count})
		}
	}
	return out
}

// Merge folds every entry of src into m. Merging is additive, so the result
// is independent of the order in which partial maps arrive.
func (m *Map) Merge(src *Map) {
	for _, s := range src.slots {
		if s.used {
			m.Increment(s.key, s.count)
		}
	}
}

// MergeEntries folds decoded wire entries into m.
func (m *Map) MergeEntries(entries []Entry) {
	for _, e := range entries {
		m.Increment(e.Key, e.Count)
	}
}
