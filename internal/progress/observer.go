// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package progress

import (
	"sync"

	"github.com/nbridge/nbridge/internal/render"
)

// State is a task's lifecycle state.
type State int

const (
	Running State = iota
	Finished
	Errored
)

// Task is the aggregator's bookkeeping record for one task-id.
type Task struct {
	ID          string
	Description string
	Total       int64
	Completed   int64
	State       State
	Message     string
}

// AggregatingObserver merges events from any number of attached
// Subjects into a single task map and drives exactly one render.Sink.
// Terminal tasks are retained until an explicit Reap(), so a caller
// can show final state before tearing down the display.
type AggregatingObserver struct {
	sink render.Sink

	mu      sync.Mutex
	tasks   map[string]*Task
	handles map[string]render.Handle
}

// NewAggregatingObserver returns an observer driving sink.
func NewAggregatingObserver(sink render.Sink) *AggregatingObserver {
	return &AggregatingObserver{
		sink:    sink,
		tasks:   make(map[string]*Task),
		handles: make(map[string]render.Handle),
	}
}

// OnEvent implements Observer. It never panics on malformed input: an
// event for an unknown task-id outside TaskStarted is ignored.
func (a *AggregatingObserver) OnEvent(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Kind {
	case TaskStarted:
		task := &Task{ID: ev.TaskID, Description: ev.Description, Total: ev.Total, State: Running}
		a.tasks[ev.TaskID] = task
		a.handles[ev.TaskID] = a.sink.Register(ev.TaskID, ev.Description, ev.Total)

	case ProgressAdvanced:
		task, ok := a.tasks[ev.TaskID]
		if !ok {
			return
		}
		task.Completed += ev.Advance
		if task.Completed > task.Total {
			task.Completed = task.Total
		}
		if handle, ok := a.handles[ev.TaskID]; ok {
			handle.Update(task.Completed, task.Total)
		}

	case TaskFinished:
		task, ok := a.tasks[ev.TaskID]
		if !ok {
			return
		}
		task.State = Finished
		if handle, ok := a.handles[ev.TaskID]; ok {
			handle.Finish(ev.Success, "")
		}

	case TaskError:
		task, ok := a.tasks[ev.TaskID]
		if !ok {
			return
		}
		task.State = Errored
		task.Message = ev.Message
		if handle, ok := a.handles[ev.TaskID]; ok {
			handle.Finish(false, ev.Message)
		}
	}
}

// Snapshot returns a copy of every task currently known, for tests and
// for callers computing a process exit code from terminal states.
func (a *AggregatingObserver) Snapshot() []Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Task, 0, len(a.tasks))
	for _, t := range a.tasks {
		out = append(out, *t)
	}
	return out
}

// Reap drops a terminal task from the aggregator's bookkeeping. It is
// a no-op for a task still Running.
func (a *AggregatingObserver) Reap(taskID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	task, ok := a.tasks[taskID]
	if !ok || task.State == Running {
		return
	}
	delete(a.tasks, taskID)
	delete(a.handles, taskID)
}
