package anima

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// Retry policy for turn persistence.
const (
	saveMaxAttempts = 3
	saveBaseDelay   = time.Second
)

// flushPollInterval is how often Flush re-checks the queue.
const flushPollInterval = 100 * time.Millisecond

// ErrSaverClosed is returned when a save is requested after Close.
var ErrSaverClosed = fmt.Errorf("saver is closed")

// importanceKeywords raise the estimated importance of a turn.
var importanceKeywords = []string{
	"important", "critical", "remember", "note", "warning",
	"error", "issue", "problem", "solution", "decision",
}

type saveJob struct {
	turn Turn
	done chan error
}

// Saver persists conversation turns to the memory backend through a
// FIFO queue drained by a single worker. Writes retry with backoff
// before the failure is reported on the job's completion channel.
type Saver struct {
	agentID  string
	backend  Backend
	pipeline pipz.Chainable[saveJob]

	mu     sync.Mutex
	queue  []saveJob
	busy   bool
	closed bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewSaver creates a turn saver and starts its worker.
func NewSaver(agentID string, backend Backend) *Saver {
	s := &Saver{
		agentID: agentID,
		backend: backend,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	persist := pipz.Apply(pipz.NewIdentity("persist-turn", ""), func(ctx context.Context, job saveJob) (saveJob, error) {
		if err := s.persist(ctx, job.turn); err != nil {
			return job, err
		}
		return job, nil
	})
	s.pipeline = pipz.NewBackoff(pipz.NewIdentity("persist-turn-retry", ""), persist, saveMaxAttempts, saveBaseDelay)

	go s.work()
	return s
}

// Save enqueues a turn for background persistence. The returned
// channel receives the outcome once the write (including retries)
// finishes, then closes.
func (s *Saver) Save(ctx context.Context, turn Turn) <-chan error {
	job := saveJob{turn: turn, done: make(chan error, 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		job.done <- ErrSaverClosed
		close(job.done)
		return job.done
	}
	s.queue = append(s.queue, job)
	depth := len(s.queue)
	s.mu.Unlock()

	capitan.Emit(ctx, SaveEnqueued,
		FieldAgentID.Field(s.agentID),
		FieldQueueDepth.Field(depth),
	)

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return job.done
}

// SaveSync persists a turn immediately, bypassing the queue.
func (s *Saver) SaveSync(ctx context.Context, turn Turn) error {
	_, err := s.pipeline.Process(ctx, saveJob{turn: turn})
	return err
}

// Flush blocks until the queue is empty and no write is in flight, or
// the context expires.
func (s *Saver) Flush(ctx context.Context) error {
	start := time.Now()
	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()

	for {
		if s.idle() {
			capitan.Emit(ctx, QueueFlushed,
				FieldAgentID.Field(s.agentID),
				FieldDuration.Field(time.Since(start)),
			)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("flush interrupted: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close rejects further saves and stops the worker. Queued jobs that
// have not started are failed with ErrSaverClosed. Call Flush first to
// drain.
func (s *Saver) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, job := range pending {
		job.done <- ErrSaverClosed
		close(job.done)
	}

	close(s.stop)
	<-s.done
}

// QueueDepth reports the number of turns waiting to be written.
func (s *Saver) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Saver) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) == 0 && !s.busy
}

func (s *Saver) work() {
	defer close(s.done)
	for {
		job, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}

		_, err := s.pipeline.Process(context.Background(), job)

		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()

		job.done <- err
		close(job.done)
	}
}

func (s *Saver) next() (saveJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return saveJob{}, false
	}
	job := s.queue[0]
	s.queue = s.queue[1:]
	s.busy = true
	return job, true
}

// persist writes one turn as a conversation memory. An explicit
// importance on the turn wins; otherwise one is estimated.
func (s *Saver) persist(ctx context.Context, turn Turn) error {
	var importance float64
	if turn.Importance != nil {
		importance = clamp01(*turn.Importance)
	} else {
		importance = estimateImportance(turn)
	}

	_, err := s.backend.Save(ctx, SaveRequest{
		Text:   fmt.Sprintf("User: %s\nAssistant: %s", turn.UserMessage, turn.AssistantResponse),
		Tags:   []string{"conversation", "autosave"},
		Source: "autosave",
		Metadata: map[string]any{
			"importance": importance,
			"agentId":    s.agentID,
			"timestamp":  turn.Timestamp.Format(time.RFC3339),
		},
	})
	if err != nil {
		capitan.Error(ctx, SaveFailed,
			FieldAgentID.Field(s.agentID),
			FieldError.Field(err),
		)
		return fmt.Errorf("turn persistence failed: %w", err)
	}

	capitan.Emit(ctx, SaveCompleted,
		FieldAgentID.Field(s.agentID),
		FieldImportance.Field(float32(importance)),
	)
	return nil
}

// estimateImportance scores a turn on surface signals: response
// length, question and exclamation density, code blocks, and keyword
// hits across the whole exchange. The result is clamped to [0,1].
func estimateImportance(turn Turn) float64 {
	content := turn.UserMessage + "\n" + turn.AssistantResponse
	importance := 0.5

	switch {
	case len(turn.AssistantResponse) > 1000:
		importance += 0.2
	case len(turn.AssistantResponse) > 500:
		importance += 0.1
	}

	questionBonus := 0.1 * float64(strings.Count(content, "?"))
	if questionBonus > 0.2 {
		questionBonus = 0.2
	}
	importance += questionBonus

	exclaimBonus := 0.05 * float64(strings.Count(content, "!"))
	if exclaimBonus > 0.1 {
		exclaimBonus = 0.1
	}
	importance += exclaimBonus

	codeBonus := 0.1 * float64(strings.Count(content, "```")/2)
	if codeBonus > 0.2 {
		codeBonus = 0.2
	}
	importance += codeBonus

	lower := strings.ToLower(content)
	keywordBonus := 0.0
	for _, kw := range importanceKeywords {
		if strings.Contains(lower, kw) {
			keywordBonus += 0.1
		}
	}
	if keywordBonus > 0.3 {
		keywordBonus = 0.3
	}
	importance += keywordBonus

	return clamp01(importance)
}
