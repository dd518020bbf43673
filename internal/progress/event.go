// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package progress implements the per-connection event publisher and
// the observers that fan out of it: a task is started, advanced zero
// or more times, and finished or errored, always in that order for a
// given task-id.
package progress

import "time"

// Kind selects the variant of an Event published by a Subject. TaskID
// is set for every Kind; the other fields are meaningful only for the
// Kind noted beside them. Callers dispatch on Kind with an exhaustive
// switch.
type Kind int

const (
	TaskStarted Kind = iota
	ProgressAdvanced
	TaskFinished
	TaskError
)

func (k Kind) String() string {
	switch k {
	case TaskStarted:
		return "TaskStarted"
	case ProgressAdvanced:
		return "ProgressAdvanced"
	case TaskFinished:
		return "TaskFinished"
	case TaskError:
		return "TaskError"
	default:
		return "Unknown"
	}
}

// Event carries one occurrence for a single task-id. At is the
// creation timestamp; ordering of events sharing a TaskID is
// preserved by the publishing Subject.
type Event struct {
	Kind Kind
	At   time.Time

	TaskID      string
	Description string // TaskStarted only
	Total       int64  // TaskStarted only

	Advance int64 // ProgressAdvanced only

	Success bool // TaskFinished only

	Message string // TaskError only
}

// NewTaskStarted builds a TaskStarted event for taskID.
func NewTaskStarted(taskID, description string, total int64) Event {
	return Event{Kind: TaskStarted, At: time.Now(), TaskID: taskID, Description: description, Total: total}
}

// NewProgressAdvanced builds a ProgressAdvanced event for taskID.
func NewProgressAdvanced(taskID string, advance int64) Event {
	return Event{Kind: ProgressAdvanced, At: time.Now(), TaskID: taskID, Advance: advance}
}

// NewTaskFinished builds a TaskFinished event for taskID.
func NewTaskFinished(taskID string, success bool) Event {
	return Event{Kind: TaskFinished, At: time.Now(), TaskID: taskID, Success: success}
}

// NewTaskError builds a TaskError event for taskID.
func NewTaskError(taskID, message string) Event {
	return Event{Kind: TaskError, At: time.Now(), TaskID: taskID, Message: message}
}
