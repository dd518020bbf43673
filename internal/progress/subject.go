// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package progress

import (
	"fmt"
	"os"
	"sync"
)

// Observer receives events published by one or more Subjects. A
// panicking observer must not prevent its siblings from receiving the
// same event; Subject.Publish recovers and swallows with a stderr
// diagnostic rather than propagating.
type Observer interface {
	OnEvent(Event)
}

// Subject fans one session's events out to every attached observer.
// Publish is always called from the owning session's single goroutine,
// so event ordering per task-id is preserved without any locking on
// the publish path itself; the lock only guards the observer list
// against concurrent Attach/Detach from other goroutines.
type Subject struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewSubject returns an empty Subject.
func NewSubject() *Subject {
	return &Subject{}
}

// Attach registers an observer. Safe to call concurrently with Publish.
func (s *Subject) Attach(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Detach removes an observer by identity. A no-op if o was never
// attached.
func (s *Subject) Detach(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every currently attached observer, under a
// read lock so concurrent Attach/Detach calls don't race the slice.
// Each observer is invoked inside its own recover() so one broken
// observer can't take the others down with it.
func (s *Subject) Publish(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.observers {
		invokeObserver(o, ev)
	}
}

func invokeObserver(o Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "progress: observer panicked on %s for task %s: %v\n", ev.Kind, ev.TaskID, r)
		}
	}()
	o.OnEvent(ev)
}
