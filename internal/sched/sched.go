// Package sched implements the scheduler: a single-owner actor holding
// every Project and the round-robin dispatch queue, reachable only through
// three channels. No other goroutine ever touches a Project directly.
package sched

import (
	"context"

	"github.com/google/uuid"

	"github.com/ianremillard/renderfarm/internal/project"
	"github.com/ianremillard/renderfarm/internal/proto"
	"github.com/ianremillard/renderfarm/internal/rflog"
	"github.com/ianremillard/renderfarm/internal/rfmetrics"
)

// Result is a (task, outcome) pair reported by a connection handler.
type Result struct {
	Task   proto.RenderTask
	Result proto.RenderResult
}

// ManageCmd is the tagged union of operator commands accepted on manage-in.
type ManageCmd interface {
	isManageCmd()
}

// AddProject registers a new project and enqueues it for dispatch.
type AddProject struct {
	Project *project.Project
}

func (AddProject) isManageCmd() {}

// RetryFailed re-queues a project's failed frames onto the back of waiting.
type RetryFailed struct {
	ProjectUUID uuid.UUID
}

func (RetryFailed) isManageCmd() {}

// resultInboxCapacity is the channel capacity approximating spec's
// "unbounded" result inbox: generous enough that no connection handler
// ever blocks reporting a result, since the scheduler drains it every loop
// iteration it is reached.
const resultInboxCapacity = 4096

// manageInboxCapacity is the analogous capacity for management commands,
// which are rarer than per-frame results.
const manageInboxCapacity = 256

// Scheduler owns all Project state. It is constructed with New and driven
// by calling Run in its own goroutine.
type Scheduler struct {
	renderOut chan proto.RenderTask
	resultIn  chan Result
	manageIn  chan ManageCmd

	projects    map[uuid.UUID]*project.Project
	roundRobin  []uuid.UUID
	inRoundRobin map[uuid.UUID]bool
}

// New constructs an idle Scheduler. Call Run to start it.
func New() *Scheduler {
	return &Scheduler{
		renderOut:    make(chan proto.RenderTask), // rendezvous: the sole back-pressure mechanism
		resultIn:     make(chan Result, resultInboxCapacity),
		manageIn:     make(chan ManageCmd, manageInboxCapacity),
		projects:     make(map[uuid.UUID]*project.Project),
		inRoundRobin: make(map[uuid.UUID]bool),
	}
}

// RenderOut is the channel connection handlers claim RenderTasks from.
func (s *Scheduler) RenderOut() <-chan proto.RenderTask { return s.renderOut }

// ResultIn is the channel connection handlers report (task, result) pairs
// on. Exactly one report must arrive here for every task claimed from
// RenderOut, even when the session dies mid-flight.
func (s *Scheduler) ResultIn() chan<- Result { return s.resultIn }

// ManageIn is the channel operator commands (AddProject, RetryFailed)
// arrive on.
func (s *Scheduler) ManageIn() chan<- ManageCmd { return s.manageIn }

// Run executes the scheduler's main loop until ctx is canceled. It is
// intended to run in its own goroutine for the lifetime of the process.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		if len(s.roundRobin) > 0 {
			uid := s.roundRobin[0]
			s.roundRobin = s.roundRobin[1:]
			s.inRoundRobin[uid] = false

			p := s.projects[uid]
			frame := p.TakeNextWaiting()
			task := proto.RenderTask{
				ProjectUUID: uid,
				ProjectName: p.Name,
				Frame:       frame,
				OutputExt:   p.OutputExt,
			}

			select {
			case s.renderOut <- task:
				rfmetrics.FramesDispatched.WithLabelValues(uid.String(), p.Name).Inc()
				rfmetrics.FramesInFlight.Inc()
			case <-ctx.Done():
				return
			}

			if p.NumWaiting() > 0 {
				s.enqueueRoundRobin(uid)
			}
			s.drainNonBlocking()
			continue
		}

		select {
		case <-ctx.Done():
			return
		case r := <-s.resultIn:
			s.applyResult(r)
			s.drainNonBlocking()
		case cmd := <-s.manageIn:
			s.applyManage(cmd)
			s.drainNonBlocking()
		}
	}
}

// drainNonBlocking consumes any further results/commands already queued,
// without blocking, before the loop re-checks round-robin — this is the
// "drain result-in, then drain manage-in" step of the spec's main loop,
// collapsed into one non-blocking sweep since both channels are read the
// same way.
func (s *Scheduler) drainNonBlocking() {
	for {
		select {
		case r := <-s.resultIn:
			s.applyResult(r)
			continue
		default:
		}
		select {
		case cmd := <-s.manageIn:
			s.applyManage(cmd)
			continue
		default:
		}
		return
	}
}

func (s *Scheduler) applyResult(r Result) {
	p, ok := s.projects[r.Task.ProjectUUID]
	if !ok {
		rflog.L().Errorw("result for unknown project", "project_uuid", r.Task.ProjectUUID, "frame", r.Task.Frame)
		return
	}

	switch r.Result {
	case proto.ResultOk:
		p.CompleteFrame(r.Task.Frame)
		rfmetrics.FramesCompleted.WithLabelValues(p.UUID.String(), p.Name).Inc()
		if p.Complete() {
			rflog.L().Infow("project_complete", "project_uuid", p.UUID, "project_name", p.Name, "frames", p.NumFrames())
		}
	case proto.ResultErr:
		p.Fail(r.Task.Frame)
		rfmetrics.FramesFailed.WithLabelValues(p.UUID.String(), p.Name).Inc()
		if p.NumWaiting() == 0 && p.NumAssigned() == 0 && p.NumFailed() > 0 {
			rflog.L().Errorw("project_exhausted", "project_uuid", p.UUID, "project_name", p.Name, "failed", p.NumFailed())
		}
	}
	rfmetrics.FramesInFlight.Dec()
}

func (s *Scheduler) applyManage(cmd ManageCmd) {
	switch c := cmd.(type) {
	case AddProject:
		if _, exists := s.projects[c.Project.UUID]; exists {
			panic("sched: AddProject with duplicate UUID " + c.Project.UUID.String())
		}
		s.projects[c.Project.UUID] = c.Project
		s.enqueueRoundRobin(c.Project.UUID)
		rflog.L().Infow("project_added", "project_uuid", c.Project.UUID, "project_name", c.Project.Name, "frames", c.Project.NumFrames())

	case RetryFailed:
		p, ok := s.projects[c.ProjectUUID]
		if !ok {
			rflog.L().Errorw("RetryFailed for unknown project", "project_uuid", c.ProjectUUID)
			return
		}
		p.RetryFailed()
		if p.NumWaiting() > 0 {
			s.enqueueRoundRobin(c.ProjectUUID)
		}
	}
}

// enqueueRoundRobin pushes uid to the back of the round-robin queue unless
// it is already present.
func (s *Scheduler) enqueueRoundRobin(uid uuid.UUID) {
	if s.inRoundRobin[uid] {
		return
	}
	s.roundRobin = append(s.roundRobin, uid)
	s.inRoundRobin[uid] = true
}
