// Package tasks tracks background shell tasks that have been detached from
// the synchronous tool-call flow. The registry is fed by its own event
// stream (full-list updates and output events) and stays consistent with
// the tool-call records because both react to the same transport events.
package tasks

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is a background task's lifecycle status.
type Status string

const (
	TaskRunning   Status = "running"
	TaskCompleted Status = "completed"
	TaskFailed    Status = "failed"
)

// Task is one detached command with its accumulated output.
type Task struct {
	ID        string    `json:"id"`
	ToolID    string    `json:"tool_id,omitempty"` // weak reference, no ownership
	Command   string    `json:"command"`
	Status    Status    `json:"status"`
	Stdout    string    `json:"stdout,omitempty"`
	Stderr    string    `json:"stderr,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Registry is the keyed collection of background tasks.
type Registry struct {
	mu      sync.Mutex
	tasks   map[string]*task
	order   []string
	running int
	logger  *zap.Logger
}

type task struct {
	Task
	stdout strings.Builder
	stderr strings.Builder
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{tasks: make(map[string]*task), logger: logger}
}

// Info is one task as reported by the host in a full-list update.
type Info struct {
	ID        string
	ToolID    string
	Command   string
	Status    Status
	StartedAt time.Time
}

// ApplyList reconciles the registry against the host's full task list.
// Known tasks keep their accumulated output; tasks missing from the list
// are dropped.
func (r *Registry) ApplyList(infos []Info, runningCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool, len(infos))
	for _, info := range infos {
		seen[info.ID] = true
		if existing, ok := r.tasks[info.ID]; ok {
			existing.Status = info.Status
			if info.Command != "" {
				existing.Command = info.Command
			}
			continue
		}
		t := &task{Task: Task{
			ID:        info.ID,
			ToolID:    info.ToolID,
			Command:   info.Command,
			Status:    info.Status,
			StartedAt: info.StartedAt,
		}}
		r.tasks[info.ID] = t
		r.order = append(r.order, info.ID)
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if seen[id] {
			kept = append(kept, id)
		} else {
			delete(r.tasks, id)
		}
	}
	r.order = kept
	r.running = runningCount
}

// AppendOutput appends to a task's stdout or stderr depending on the stream
// discriminator. Unknown ids are silently ignored: a task may complete and
// be dropped before a trailing output event lands.
func (r *Registry) AppendOutput(id, text string, stderr bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		r.logger.Debug("output for unknown task", zap.String("task_id", id))
		return
	}
	if stderr {
		t.stderr.WriteString(text)
	} else {
		t.stdout.WriteString(text)
	}
}

// Get returns a snapshot of one task.
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.snapshot(), true
}

// List returns task snapshots in insertion order.
func (r *Registry) List() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id].snapshot())
	}
	return out
}

// RunningCount returns the host-reported count of running tasks.
func (r *Registry) RunningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (t *task) snapshot() Task {
	out := t.Task
	out.Stdout = t.stdout.String()
	out.Stderr = t.stderr.String()
	return out
}
