package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ssuji15/docbuilder/internal/metrics"
	"github.com/ssuji15/docbuilder/model"
)

// memQueue mirrors the selection rules of the postgres queue.
type memQueue struct {
	mu        sync.Mutex
	nextID    int64
	entries   map[int64]*model.QueueEntry
	claimed   map[int64]bool
	failOn    map[string]error
	claimErr  error
	deleteErr error
	extended  map[int64]int
}

func newMemQueue() *memQueue {
	return &memQueue{
		entries:  map[int64]*model.QueueEntry{},
		claimed:  map[int64]bool{},
		failOn:   map[string]error{},
		extended: map[int64]int{},
	}
}

func (q *memQueue) Enqueue(_ context.Context, name, version string, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err, ok := q.failOn[name]; ok {
		return err
	}
	for _, e := range q.entries {
		if e.Name == name && e.Version == version {
			return nil
		}
	}
	q.nextID++
	q.entries[q.nextID] = &model.QueueEntry{ID: q.nextID, Name: name, Version: version, Priority: priority}
	return nil
}

func (q *memQueue) CountEligible(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for _, e := range q.entries {
		if e.Attempt < MaxAttempts {
			n++
		}
	}
	return n, nil
}

func (q *memQueue) ClaimNext(context.Context) (*model.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.claimErr != nil {
		return nil, q.claimErr
	}
	var eligible []*model.QueueEntry
	for _, e := range q.entries {
		if e.Attempt < MaxAttempts && !q.claimed[e.ID] {
			eligible = append(eligible, e)
		}
	}
	if len(eligible) == 0 {
		return nil, ErrQueueEmpty
	}
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Attempt != b.Attempt {
			return a.Attempt < b.Attempt
		}
		return a.ID < b.ID
	})
	e := *eligible[0]
	q.claimed[e.ID] = true
	return &e, nil
}

func (q *memQueue) RecordSuccess(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deleteErr != nil {
		return q.deleteErr
	}
	delete(q.entries, id)
	delete(q.claimed, id)
	return nil
}

func (q *memQueue) RecordFailure(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return errors.New("unknown entry")
	}
	e.Attempt++
	delete(q.claimed, id)
	return nil
}

func (q *memQueue) ExtendClaim(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.claimed[id] {
		return errors.New("entry not claimed")
	}
	q.extended[id]++
	return nil
}

func (q *memQueue) extensions(id int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.extended[id]
}

func (q *memQueue) get(name, version string) *model.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.Name == name && e.Version == version {
			c := *e
			return &c
		}
	}
	return nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	enqueued int
	eligible int64
	outcomes map[metrics.OutcomeLabel]int
	statuses []string
}

func (r *fakeRecorder) IncQueueOutcome(o metrics.OutcomeLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[metrics.OutcomeLabel]int{}
	}
	r.outcomes[o]++
}

func (r *fakeRecorder) ObserveBuildDuration(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *fakeRecorder) AddEnqueued(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueued += n
}

func (r *fakeRecorder) SetQueueEligible(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eligible = n
}
