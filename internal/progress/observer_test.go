// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package progress

import (
	"bytes"
	"testing"

	"github.com/nbridge/nbridge/internal/render"
)

func TestAggregatingObserver_TracksCompletedClampedToTotal(t *testing.T) {
	var buf bytes.Buffer
	obs := NewAggregatingObserver(render.NewSimple(&buf))

	obs.OnEvent(NewTaskStarted("t1", "file.bin", 100))
	obs.OnEvent(NewProgressAdvanced("t1", 60))
	obs.OnEvent(NewProgressAdvanced("t1", 60))
	obs.OnEvent(NewTaskFinished("t1", true))

	snap := obs.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 task, got %d", len(snap))
	}
	task := snap[0]
	if task.Completed > task.Total {
		t.Fatalf("completed %d exceeds total %d", task.Completed, task.Total)
	}
	if task.Completed != 100 {
		t.Fatalf("expected completed clamped to 100, got %d", task.Completed)
	}
	if task.State != Finished {
		t.Fatalf("expected Finished state, got %v", task.State)
	}
}

func TestAggregatingObserver_ConcurrentTransfersNoNegativeProgress(t *testing.T) {
	var buf bytes.Buffer
	obs := NewAggregatingObserver(render.NewSimple(&buf))

	obs.OnEvent(NewTaskStarted("a", "a.bin", 1024*1024))
	obs.OnEvent(NewTaskStarted("b", "b.bin", 1024*1024))

	for i := 0; i < 16; i++ {
		obs.OnEvent(NewProgressAdvanced("a", 65536))
		obs.OnEvent(NewProgressAdvanced("b", 65536))
	}
	obs.OnEvent(NewTaskFinished("a", true))
	obs.OnEvent(NewTaskFinished("b", true))

	finished := 0
	for _, task := range obs.Snapshot() {
		if task.Completed < 0 || task.Completed > task.Total {
			t.Fatalf("task %s: completed %d out of [0,%d]", task.ID, task.Completed, task.Total)
		}
		if task.State == Finished && task.Completed == task.Total {
			finished++
		}
	}
	if finished != 2 {
		t.Fatalf("expected 2 finished tasks with completed == total, got %d", finished)
	}
}

func TestAggregatingObserver_ReapRemovesOnlyTerminalTasks(t *testing.T) {
	var buf bytes.Buffer
	obs := NewAggregatingObserver(render.NewSimple(&buf))

	obs.OnEvent(NewTaskStarted("running", "r.bin", 10))
	obs.OnEvent(NewTaskStarted("done", "d.bin", 10))
	obs.OnEvent(NewTaskFinished("done", true))

	obs.Reap("running")
	obs.Reap("done")

	snap := obs.Snapshot()
	if len(snap) != 1 || snap[0].ID != "running" {
		t.Fatalf("expected only the running task to survive reap, got %+v", snap)
	}
}

func TestAggregatingObserver_TaskErrorSetsMessage(t *testing.T) {
	var buf bytes.Buffer
	obs := NewAggregatingObserver(render.NewSimple(&buf))

	obs.OnEvent(NewTaskStarted("t1", "file.bin", 10))
	obs.OnEvent(NewTaskError("t1", "disk full"))

	snap := obs.Snapshot()
	if snap[0].State != Errored || snap[0].Message != "disk full" {
		t.Fatalf("expected Errored state with message, got %+v", snap[0])
	}
}
