package tpool

import (
	"sync"
	"time"
)

// Scheduler fires periodic tasks by submitting them as jobs. A task whose
// submission is refused is dropped from the schedule.
type Scheduler struct {
	target Submitter
	tasks  []*SchedulerTask
	mu     sync.Mutex
	quit   chan struct{}
	once   sync.Once
}

type SchedulerTask struct {
	Interval time.Duration
	Next     time.Time
	Handler  func()
}

func NewScheduler(target Submitter) *Scheduler {
	return &Scheduler{
		target: target,
		quit:   make(chan struct{}),
	}
}

func (s *Scheduler) Start(resolution time.Duration) {
	if resolution <= 0 {
		resolution = 10 * time.Millisecond
	}
	go func() {
		ticker := time.NewTicker(resolution)
		defer ticker.Stop()

		for {
			select {
			case now := <-ticker.C:
				s.tick(now)
			case <-s.quit:
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.quit) })
}

func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if now.Before(t.Next) {
			kept = append(kept, t)
			continue
		}
		if err := s.target.Submit(JobFunc(t.Handler)); err != nil {
			continue
		}
		t.Next = now.Add(t.Interval)
		kept = append(kept, t)
	}
	clear(s.tasks[len(kept):])
	s.tasks = kept
}

func (s *Scheduler) Every(interval time.Duration, handler func()) {
	s.mu.Lock()
	s.tasks = append(s.tasks, &SchedulerTask{
		Interval: interval,
		Next:     time.Now().Add(interval),
		Handler:  handler,
	})
	s.mu.Unlock()
}

// Len reports the number of scheduled tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
