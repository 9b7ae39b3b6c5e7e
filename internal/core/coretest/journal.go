package coretest

import "sync"

// Journal records collaborator calls in the order they happened.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// Record is a no-op on a nil journal.
func (j *Journal) Record(entry string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.entries = append(j.entries, entry)
	j.mu.Unlock()
}

func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

func (j *Journal) Count(entry string) int {
	n := 0
	for _, e := range j.Entries() {
		if e == entry {
			n++
		}
	}
	return n
}

func (j *Journal) Reset() {
	j.mu.Lock()
	j.entries = nil
	j.mu.Unlock()
}
