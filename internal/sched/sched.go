// Package sched is a small deadline scheduler. Tasks are held in a
// min-heap ordered by due time and fired by polling Tick from the
// engine's update loop; nothing runs on its own goroutine.
package sched

import (
	"container/heap"
	"sync"
	"time"
)

// TaskID identifies a scheduled task for cancellation.
type TaskID uint64

type task struct {
	id       TaskID
	due      time.Time
	fn       func()
	index    int
	canceled bool
}

type taskHeap []*task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *taskHeap) Push(x any)         { t := x.(*task); t.index = len(*h); *h = append(*h, t) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Scheduler runs callbacks at or after their due time, in due order.
type Scheduler struct {
	mu     sync.Mutex
	tasks  taskHeap
	byID   map[TaskID]*task
	nextID TaskID
}

func New() *Scheduler {
	return &Scheduler{byID: make(map[TaskID]*task)}
}

// ScheduleAt registers fn to run once Tick is called with a time at or
// past due.
func (s *Scheduler) ScheduleAt(due time.Time, fn func()) TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t := &task{id: s.nextID, due: due, fn: fn}
	heap.Push(&s.tasks, t)
	s.byID[t.id] = t
	return t.id
}

// ScheduleAfter registers fn to run d after now.
func (s *Scheduler) ScheduleAfter(now time.Time, d time.Duration, fn func()) TaskID {
	return s.ScheduleAt(now.Add(d), fn)
}

// Cancel prevents a pending task from firing. Returns false when the id
// is unknown or the task already ran.
func (s *Scheduler) Cancel(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return false
	}
	t.canceled = true
	delete(s.byID, id)
	return true
}

// CancelAll drops every pending task.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.byID {
		t.canceled = true
	}
	s.byID = make(map[TaskID]*task)
	s.tasks = nil
}

// Pending reports how many tasks have not yet fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// NextDue returns the earliest pending deadline, or a zero time when
// nothing is scheduled.
func (s *Scheduler) NextDue() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.tasks) > 0 && s.tasks[0].canceled {
		heap.Pop(&s.tasks)
	}
	if len(s.tasks) == 0 {
		return time.Time{}
	}
	return s.tasks[0].due
}

// Tick fires every task due at or before now, in due order, and returns
// the number fired. Callbacks run without the scheduler lock held, so
// they may schedule or cancel further tasks.
func (s *Scheduler) Tick(now time.Time) int {
	fired := 0
	for {
		s.mu.Lock()
		for len(s.tasks) > 0 && s.tasks[0].canceled {
			heap.Pop(&s.tasks)
		}
		if len(s.tasks) == 0 || s.tasks[0].due.After(now) {
			s.mu.Unlock()
			return fired
		}
		t := heap.Pop(&s.tasks).(*task)
		delete(s.byID, t.id)
		s.mu.Unlock()

		t.fn()
		fired++
	}
}
