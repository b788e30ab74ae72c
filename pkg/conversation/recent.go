package conversation

import "sync"

const DefaultRecentLimit = 10

// RecentQueryLog keeps the opening queries of threads, most recent first.
// Entries are not deduplicated.
type RecentQueryLog struct {
	mu      sync.RWMutex
	limit   int
	entries []string
}

// NewRecentQueryLog returns a log capped at limit entries. A limit below 1
// uses DefaultRecentLimit.
func NewRecentQueryLog(limit int) *RecentQueryLog {
	if limit < 1 {
		limit = DefaultRecentLimit
	}
	return &RecentQueryLog{
		limit:   limit,
		entries: make([]string, 0, limit),
	}
}

// Record prepends text and drops the oldest entries past the cap.
func (r *RecentQueryLog) Record(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries) + 1
	if n > r.limit {
		n = r.limit
	}
	next := make([]string, 0, r.limit)
	next = append(next, text)
	next = append(next, r.entries[:n-1]...)
	r.entries = next
}

// List returns a copy of the entries, most recent first.
func (r *RecentQueryLog) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]string, len(r.entries))
	copy(ret, r.entries)
	return ret
}

func (r *RecentQueryLog) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *RecentQueryLog) Limit() int {
	return r.limit
}
