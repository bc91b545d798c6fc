// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package expiry

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
)

// Action runs when an entry fires. It receives the id it was scheduled for.
type Action func(ctx context.Context, id string)

type entry struct {
	id     string
	at     time.Time
	action Action
	index  int
}

// entryQueue is a min-heap of entries ordered by fire time.
type entryQueue []*entry

func (q entryQueue) Len() int { return len(q) }

func (q entryQueue) Less(i, j int) bool { return q[i].at.Before(q[j].at) }

func (q entryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *entryQueue) Push(x any) {
	e := x.(*entry) //nolint:forcetypeassert
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *entryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Scheduler keeps at most one pending entry per id and fires them in order
// from a single worker. Every entry is claimed exactly once, either when it
// fires or when it is cancelled.
type Scheduler struct {
	clock Clock

	mu      sync.Mutex
	queue   entryQueue
	entries map[string]*entry

	wake chan struct{}
}

// NewScheduler creates a scheduler reading time from clock. A nil clock
// means the system clock.
func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{
		clock:   clock,
		entries: map[string]*entry{},
		wake:    make(chan struct{}, 1),
	}
}

// Schedule arms action to run for id at the given time. A pending entry
// for the same id is replaced.
func (s *Scheduler) Schedule(id string, at time.Time, action Action) {
	s.mu.Lock()
	if e, ok := s.entries[id]; ok {
		e.at = at
		e.action = action
		heap.Fix(&s.queue, e.index)
	} else {
		e := &entry{id: id, at: at, action: action}
		heap.Push(&s.queue, e)
		s.entries[id] = e
	}
	s.mu.Unlock()

	s.notify()
}

// Cancel removes the pending entry for id. It returns true only when this
// call claimed the entry, false if it already fired or was never armed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, e.index)
	delete(s.entries, id)
	return true
}

// Pending returns the number of armed entries.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Next returns the fire time of the earliest pending entry.
func (s *Scheduler) Next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].at, true
}

// RunDue fires every entry whose time has come and returns how many ran.
// Actions run outside the scheduler lock so they may call Schedule or
// Cancel.
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.clock.Now()

	s.mu.Lock()
	var due []*entry
	for len(s.queue) > 0 && !s.queue[0].at.After(now) {
		e := heap.Pop(&s.queue).(*entry) //nolint:forcetypeassert
		delete(s.entries, e.id)
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		e.action(ctx, e.id)
	}
	return len(due)
}

// Run fires entries as they come due until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.RunDue(ctx)

		wait := time.Hour
		if next, ok := s.Next(); ok {
			wait = max(next.Sub(s.clock.Now()), 0)
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			clog.FromContext(ctx).Debugf("expiry scheduler stopped with %d pending entries", s.Pending())
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// notify wakes the worker so it recomputes its deadline.
func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
