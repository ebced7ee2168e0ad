package state

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Hook observes a job reaching a lifecycle state. Hooks run synchronously in
// registration order after the transition is recorded.
type Hook func(buildID string)

// EventSink receives a snapshot after every recorded transition, outside the
// registry lock. Installed once during startup.
type EventSink func(snap Snapshot)

// job is one registry record. Mutated only under the manager's lock.
type job struct {
	buildID   string
	teamName  string
	imageName string
	status    Status
	history   []Status
	payload   map[string]any
	createdAt time.Time
	cancel    context.CancelFunc
	waits     map[Status]chan struct{}
	hooks     map[Status][]Hook
}

// Snapshot is a read-only copy of a job record
type Snapshot struct {
	BuildID   string
	TeamName  string
	ImageName string
	Status    Status
	History   []Status
	CreatedAt time.Time
}

// Manager is the process-wide build job registry. It is the only mutable
// state shared across jobs, so every mutation is serialized behind one lock.
type Manager struct {
	mu     sync.Mutex
	jobs   map[string]*job
	sink   EventSink
	logger *slog.Logger
}

// NewManager creates an empty job registry
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		jobs:   make(map[string]*job),
		logger: logger,
	}
}

// SetEventSink installs the transition observer. Call before the consumer
// starts; the sink fires for every Add, Update and Kill.
func (m *Manager) SetEventSink(sink EventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// Add inserts a new job in the started state. The cancel function is the
// cooperative handle for the job's pipeline task. Duplicate ids are rejected.
func (m *Manager) Add(buildID, teamName, imageName string, payload map[string]any, cancel context.CancelFunc) error {
	m.mu.Lock()

	if _, ok := m.jobs[buildID]; ok {
		m.mu.Unlock()
		m.logger.Error("Refusing to add duplicate job",
			slog.String("build_id", buildID),
		)
		return ErrJobExists
	}

	j := &job{
		buildID:   buildID,
		teamName:  teamName,
		imageName: imageName,
		status:    StatusStarted,
		history:   []Status{StatusStarted},
		payload:   payload,
		createdAt: time.Now(),
		cancel:    cancel,
		waits:     make(map[Status]chan struct{}, len(Statuses)),
		hooks:     make(map[Status][]Hook, len(Statuses)),
	}
	for _, s := range Statuses {
		j.waits[s] = make(chan struct{})
	}
	close(j.waits[StatusStarted])

	m.jobs[buildID] = j
	sink := m.sink
	snap := snapshotOf(j)
	m.mu.Unlock()

	if sink != nil {
		sink(snap)
	}

	m.logger.Info("Job added",
		slog.String("build_id", buildID),
		slog.String("team", teamName),
	)
	return nil
}

// Update transitions a job to a new state, appends it to the history, signals
// the state's wait channel and fires the registered hooks in order.
func (m *Manager) Update(buildID string, next Status) error {
	if !next.Known() {
		return ErrUnknownStatus
	}

	m.mu.Lock()
	j, ok := m.jobs[buildID]
	if !ok {
		m.mu.Unlock()
		m.logger.Error("Cannot update unknown job",
			slog.String("build_id", buildID),
			slog.String("status", string(next)),
		)
		return ErrJobNotFound
	}
	if j.status.Terminal() {
		m.mu.Unlock()
		return ErrJobTerminal
	}

	j.status = next
	j.history = append(j.history, next)
	signal(j.waits[next])
	hooks := append([]Hook(nil), j.hooks[next]...)
	sink := m.sink
	snap := snapshotOf(j)
	m.mu.Unlock()

	for _, h := range hooks {
		h(buildID)
	}
	if sink != nil {
		sink(snap)
	}

	m.logger.Info("Job state updated",
		slog.String("build_id", buildID),
		slog.String("status", string(next)),
	)
	return nil
}

// RegisterHook appends an observer invoked after the job reaches the state
func (m *Manager) RegisterHook(buildID string, s Status, h Hook) error {
	if !s.Known() {
		return ErrUnknownStatus
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[buildID]
	if !ok {
		return ErrJobNotFound
	}
	j.hooks[s] = append(j.hooks[s], h)
	return nil
}

// Kill forces a job to the killed state, fires its hooks, then requests
// cancellation of the owning pipeline task. Cancellation is cooperative:
// a pipeline blocked inside an external call observes it only when that call
// yields.
func (m *Manager) Kill(buildID string) error {
	m.mu.Lock()
	j, ok := m.jobs[buildID]
	if !ok {
		m.mu.Unlock()
		m.logger.Error("Cannot kill unknown job",
			slog.String("build_id", buildID),
		)
		return ErrJobNotFound
	}
	if j.status.Terminal() {
		m.mu.Unlock()
		return ErrJobTerminal
	}

	j.status = StatusKilled
	j.history = append(j.history, StatusKilled)
	signal(j.waits[StatusKilled])
	hooks := append([]Hook(nil), j.hooks[StatusKilled]...)
	sink := m.sink
	snap := snapshotOf(j)
	cancel := j.cancel
	m.mu.Unlock()

	for _, h := range hooks {
		h(buildID)
	}
	if sink != nil {
		sink(snap)
	}
	if cancel != nil {
		cancel()
	}

	m.logger.Info("Job killed",
		slog.String("build_id", buildID),
	)
	return nil
}

// Get returns a read-only snapshot of one job
func (m *Manager) Get(buildID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[buildID]
	if !ok {
		return Snapshot{}, ErrJobNotFound
	}
	return snapshotOf(j), nil
}

// All returns snapshots of every registered job, ordered by creation time
func (m *Manager) All() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Snapshot, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, snapshotOf(j))
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].BuildID < out[b].BuildID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// Wait returns a channel closed once the job reaches the given state
func (m *Manager) Wait(buildID string, s Status) (<-chan struct{}, error) {
	if !s.Known() {
		return nil, ErrUnknownStatus
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[buildID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.waits[s], nil
}

// signal closes a wait channel exactly once. The progress state can be
// reached repeatedly, so the close must be idempotent.
func signal(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func snapshotOf(j *job) Snapshot {
	return Snapshot{
		BuildID:   j.buildID,
		TeamName:  j.teamName,
		ImageName: j.imageName,
		Status:    j.status,
		History:   append([]Status(nil), j.history...),
		CreatedAt: j.createdAt,
	}
}
