package campaign

import "sync"

// Quota is the hard cap on simultaneous calls the speech providers
// allow. It is shared across all campaigns and ad hoc calls; every
// dispatch decision in the process checks it.
type Quota struct {
	mu    sync.Mutex
	limit int
	used  int
}

func NewQuota(limit int) *Quota {
	if limit <= 0 {
		limit = 1
	}
	return &Quota{limit: limit}
}

func (q *Quota) TryAcquire() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.used >= q.limit {
		return false
	}
	q.used++
	return true
}

func (q *Quota) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.used > 0 {
		q.used--
	}
}

func (q *Quota) Available() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit - q.used
}

func (q *Quota) InUse() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}
