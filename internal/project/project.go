// Package project implements the per-project frame queues the scheduler
// owns exclusively: waiting, assigned, completed, and failed frames, with
// the invariants that must hold between them at every quiescent point.
package project

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ianremillard/renderfarm/internal/proto"
)

// Project is the server-side owner of a contiguous frame range. Every
// mutator is called exclusively by the scheduler; there is no internal
// locking here because the scheduler is the project's single owner.
type Project struct {
	UUID      uuid.UUID
	Name      string
	OutputExt proto.FileExt

	waiting   []proto.Frame
	assigned  map[proto.Frame]struct{}
	completed []proto.Frame
	failed    []proto.Frame
}

// New builds a Project with waiting = [start..=end] and the other three
// containers empty. It requires start <= end.
func New(name string, ext proto.FileExt, start, end proto.Frame) *Project {
	if start > end {
		panic(fmt.Sprintf("project %q: start %d > end %d", name, start, end))
	}
	if !proto.ValidFileExt(ext) {
		panic(fmt.Sprintf("project %q: invalid output extension %q", name, ext))
	}
	waiting := make([]proto.Frame, 0, end-start+1)
	for f := start; f <= end; f++ {
		waiting = append(waiting, f)
	}
	return &Project{
		UUID:      uuid.New(),
		Name:      name,
		OutputExt: ext,
		waiting:   waiting,
		assigned:  make(map[proto.Frame]struct{}),
	}
}

// NumFrames is the conserved total frame count (P2): it never changes over
// the project's lifetime.
func (p *Project) NumFrames() int {
	return len(p.waiting) + len(p.assigned) + len(p.completed) + len(p.failed)
}

func (p *Project) NumWaiting() int   { return len(p.waiting) }
func (p *Project) NumAssigned() int  { return len(p.assigned) }
func (p *Project) NumCompleted() int { return len(p.completed) }
func (p *Project) NumFailed() int    { return len(p.failed) }

// Complete reports whether every frame has reached a terminal state
// (completed or failed) with nothing left waiting or in flight.
func (p *Project) Complete() bool {
	return len(p.waiting) == 0 && len(p.assigned) == 0
}

// Progress is |completed| / num_frames, always in [0, 1]. An empty project
// (num_frames == 0) reports progress 1, matching "nothing left to do".
func (p *Project) Progress() float64 {
	n := p.NumFrames()
	if n == 0 {
		return 1
	}
	return float64(len(p.completed)) / float64(n)
}

// TakeNextWaiting pops the front of waiting, inserts it into assigned, and
// returns it. Precondition: NumWaiting() > 0 — violating it is a bug.
func (p *Project) TakeNextWaiting() proto.Frame {
	if len(p.waiting) == 0 {
		panic(fmt.Sprintf("project %s: TakeNextWaiting called with empty waiting queue", p.UUID))
	}
	f := p.waiting[0]
	p.waiting = p.waiting[1:]
	p.assigned[f] = struct{}{}
	return f
}

// CompleteFrame requires frame to be in assigned; it moves it to completed.
func (p *Project) CompleteFrame(f proto.Frame) {
	p.removeAssigned(f, "Complete")
	p.completed = append(p.completed, f)
}

// Fail requires frame to be in assigned; it moves it to failed.
func (p *Project) Fail(f proto.Frame) {
	p.removeAssigned(f, "Fail")
	p.failed = append(p.failed, f)
}

func (p *Project) removeAssigned(f proto.Frame, op string) {
	if _, ok := p.assigned[f]; !ok {
		panic(fmt.Sprintf("project %s: %s called for frame %d not in assigned", p.UUID, op, f))
	}
	delete(p.assigned, f)
}

// RetryFailed drains failed, in order, onto the back of waiting.
func (p *Project) RetryFailed() {
	p.waiting = append(p.waiting, p.failed...)
	p.failed = p.failed[:0]
}
