package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskState is the lifecycle state of one supervised ingestor.
type TaskState string

// Ingestor lifecycle states.
const (
	StatePending   TaskState = "pending"
	StateRunning   TaskState = "running"
	StateSucceeded TaskState = "succeeded"
	StateFailed    TaskState = "failed"
)

// Ingestor is one supervised feed pull.
type Ingestor interface {
	Name() string
	Run(ctx context.Context) error
}

// TaskStatus is a point-in-time snapshot of one ingestor.
type TaskStatus struct {
	Name         string     `json:"name"`
	State        TaskState  `json:"state"`
	Runs         int        `json:"runs"`
	LastError    string     `json:"last_error,omitempty"`
	LastFinished *time.Time `json:"last_finished,omitempty"`
}

// Supervisor owns the ingestors as observable background tasks instead of
// fire-and-forget goroutines: it tracks per-task state, re-runs completed
// tasks on an optional interval, and stops promptly on context
// cancellation. An ingestor failure marks the task failed without taking
// down the process.
type Supervisor struct {
	ingestors []Ingestor
	interval  time.Duration
	log       *zap.SugaredLogger

	mu     sync.Mutex
	status map[string]*TaskStatus
	wg     sync.WaitGroup
}

// NewSupervisor registers the ingestors. interval <= 0 means each ingestor
// runs exactly once per Start.
func NewSupervisor(log *zap.SugaredLogger, interval time.Duration, ingestors ...Ingestor) *Supervisor {
	status := make(map[string]*TaskStatus, len(ingestors))
	for _, ing := range ingestors {
		status[ing.Name()] = &TaskStatus{Name: ing.Name(), State: StatePending}
	}
	return &Supervisor{
		ingestors: ingestors,
		interval:  interval,
		log:       log,
		status:    status,
	}
}

// Start launches every ingestor in its own goroutine and returns.
func (s *Supervisor) Start(ctx context.Context) {
	for _, ing := range s.ingestors {
		s.wg.Add(1)
		go func(ing Ingestor) {
			defer s.wg.Done()
			s.supervise(ctx, ing)
		}(ing)
	}
}

// Wait blocks until every supervised task has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Status returns a snapshot in registration order.
func (s *Supervisor) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]TaskStatus, 0, len(s.ingestors))
	for _, ing := range s.ingestors {
		snapshot = append(snapshot, *s.status[ing.Name()])
	}
	return snapshot
}

func (s *Supervisor) supervise(ctx context.Context, ing Ingestor) {
	for {
		s.setRunning(ing.Name())
		err := ing.Run(ctx)
		s.setFinished(ing.Name(), err)
		if err != nil {
			s.log.Errorf("ingestor %s failed: %v", ing.Name(), err)
		}

		if s.interval <= 0 {
			return
		}
		if sleepContext(ctx, s.interval) != nil {
			return
		}
	}
}

func (s *Supervisor) setRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[name]
	st.State = StateRunning
	st.Runs++
}

func (s *Supervisor) setFinished(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[name]
	now := time.Now()
	st.LastFinished = &now
	if err != nil {
		st.State = StateFailed
		st.LastError = err.Error()
	} else {
		st.State = StateSucceeded
		st.LastError = ""
	}
}
