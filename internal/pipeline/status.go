package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/bookscan/bookscan-server/internal/render"
)

// Stage is a step of the per-request state machine:
// received → sampling → (extracting →) rendering → done, or errored from any
// step.
type Stage string

const (
	StageReceived   Stage = "received"
	StageSampling   Stage = "sampling"
	StageExtracting Stage = "extracting"
	StageRendering  Stage = "rendering"
	StageDone       Stage = "done"
	StageErrored    Stage = "errored"
)

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageErrored
}

// Status is a snapshot of one in-flight conversion.
type Status struct {
	ID        string      `json:"id"`
	Stage     Stage       `json:"stage"`
	Mode      render.Mode `json:"mode,omitempty"`
	Frames    int         `json:"frames"`
	StartedAt time.Time   `json:"started_at"`
	Error     string      `json:"error,omitempty"`
}

// tracker holds the status of conversions that have not yet finished.
type tracker struct {
	mu     sync.RWMutex
	active map[string]*Status
}

func newTracker() *tracker {
	return &tracker{active: make(map[string]*Status)}
}

func (t *tracker) start(id string) {
	t.mu.Lock()
	t.active[id] = &Status{ID: id, Stage: StageReceived, StartedAt: time.Now()}
	t.mu.Unlock()
}

func (t *tracker) update(id string, fn func(*Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.active[id]; ok {
		fn(s)
		if s.Stage.Terminal() {
			delete(t.active, id)
		}
	}
}

func (t *tracker) snapshot() []Status {
	t.mu.RLock()
	out := make([]Status, 0, len(t.active))
	for _, s := range t.active {
		out = append(out, *s)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
