package sched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ianremillard/renderfarm/internal/project"
	"github.com/ianremillard/renderfarm/internal/proto"
)

func startScheduler(t *testing.T) (*Scheduler, context.CancelFunc) {
	t.Helper()
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(cancel)
	return s, cancel
}

func TestSingleProjectSingleWorker(t *testing.T) {
	s, _ := startScheduler(t)

	p := project.New("P", proto.ExtPNG, 1, 3)
	s.ManageIn() <- AddProject{Project: p}

	var got []proto.Frame
	for i := 0; i < 3; i++ {
		task := <-s.RenderOut()
		got = append(got, task.Frame)
		s.ResultIn() <- Result{Task: task, Result: proto.ResultOk}
	}

	require.Equal(t, []proto.Frame{1, 2, 3}, got)

	// Let the final result drain before inspecting project state; Run owns
	// the project so we only assert through fresh dispatch/shutdown
	// behavior — no more tasks should ever appear for this project.
	select {
	case task := <-s.RenderOut():
		t.Fatalf("unexpected extra task dispatched: %+v", task)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTwoProjectFairness(t *testing.T) {
	s, _ := startScheduler(t)

	a := project.New("A", proto.ExtPNG, 1, 4)
	b := project.New("B", proto.ExtPNG, 1, 4)
	s.ManageIn() <- AddProject{Project: a}
	s.ManageIn() <- AddProject{Project: b}

	var order []string
	for i := 0; i < 8; i++ {
		task := <-s.RenderOut()
		if task.ProjectUUID == a.UUID {
			order = append(order, "A")
		} else if task.ProjectUUID == b.UUID {
			order = append(order, "B")
		} else {
			t.Fatalf("task from unknown project: %+v", task)
		}
		s.ResultIn() <- Result{Task: task, Result: proto.ResultOk}
	}

	require.Equal(t, []string{"A", "B", "A", "B", "A", "B", "A", "B"}, order)
}

func TestTransientFailureThenRetry(t *testing.T) {
	s, _ := startScheduler(t)

	p := project.New("P", proto.ExtPNG, 1, 2)
	s.ManageIn() <- AddProject{Project: p}

	task1 := <-s.RenderOut()
	require.Equal(t, proto.Frame(1), task1.Frame)
	s.ResultIn() <- Result{Task: task1, Result: proto.ResultErr}

	task2 := <-s.RenderOut()
	require.Equal(t, proto.Frame(2), task2.Frame)
	s.ResultIn() <- Result{Task: task2, Result: proto.ResultOk}

	// Nothing dispatchable right now: frame 1 sits in failed.
	select {
	case task := <-s.RenderOut():
		t.Fatalf("unexpected task before retry: %+v", task)
	case <-time.After(50 * time.Millisecond):
	}

	s.ManageIn() <- RetryFailed{ProjectUUID: p.UUID}

	task3 := <-s.RenderOut()
	require.Equal(t, proto.Frame(1), task3.Frame)
	s.ResultIn() <- Result{Task: task3, Result: proto.ResultOk}
}

func TestUnknownUUIDRetryIsIgnored(t *testing.T) {
	s, _ := startScheduler(t)
	s.ManageIn() <- RetryFailed{ProjectUUID: [16]byte{1}}

	// The scheduler keeps running and accepting further work.
	p := project.New("P", proto.ExtPNG, 1, 1)
	s.ManageIn() <- AddProject{Project: p}
	task := <-s.RenderOut()
	require.Equal(t, proto.Frame(1), task.Frame)
	s.ResultIn() <- Result{Task: task, Result: proto.ResultOk}
}
