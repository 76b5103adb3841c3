package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/renderfarm/internal/proto"
)

func TestNewInitializesWaitingRange(t *testing.T) {
	p := New("P", proto.ExtPNG, 1, 3)
	assert.Equal(t, 3, p.NumWaiting())
	assert.Equal(t, 0, p.NumAssigned())
	assert.Equal(t, 0, p.NumCompleted())
	assert.Equal(t, 0, p.NumFailed())
	assert.Equal(t, 3, p.NumFrames())
	assert.NotEqual(t, p.UUID.String(), "")
}

func TestNewPanicsOnInvertedRange(t *testing.T) {
	assert.Panics(t, func() { New("P", proto.ExtPNG, 5, 1) })
}

func TestNewPanicsOnInvalidOutputExt(t *testing.T) {
	assert.Panics(t, func() { New("P", proto.FileExt("gif"), 1, 3) })
}

func TestTakeNextWaitingOrderAndConservation(t *testing.T) {
	p := New("P", proto.ExtPNG, 1, 3)
	before := p.NumFrames()

	f1 := p.TakeNextWaiting()
	f2 := p.TakeNextWaiting()
	require.Equal(t, proto.Frame(1), f1)
	require.Equal(t, proto.Frame(2), f2)
	assert.Equal(t, 2, p.NumAssigned())
	assert.Equal(t, 1, p.NumWaiting())
	assert.Equal(t, before, p.NumFrames(), "P2: num_frames is conserved")
}

func TestTakeNextWaitingPanicsWhenEmpty(t *testing.T) {
	p := New("P", proto.ExtPNG, 1, 1)
	p.TakeNextWaiting()
	assert.Panics(t, func() { p.TakeNextWaiting() })
}

func TestCompleteMovesAssignedToCompleted(t *testing.T) {
	p := New("P", proto.ExtPNG, 1, 2)
	f := p.TakeNextWaiting()
	p.CompleteFrame(f)
	assert.Equal(t, 0, p.NumAssigned())
	assert.Equal(t, 1, p.NumCompleted())
	assert.False(t, p.Complete(), "one frame still waiting")
}

func TestCompletePanicsWhenNotAssigned(t *testing.T) {
	p := New("P", proto.ExtPNG, 1, 1)
	assert.Panics(t, func() { p.CompleteFrame(1) })
}

func TestFailThenRetryFailed(t *testing.T) {
	p := New("P", proto.ExtPNG, 1, 1)
	f := p.TakeNextWaiting()
	p.Fail(f)
	assert.Equal(t, 1, p.NumFailed())
	assert.True(t, p.Complete(), "nothing waiting or assigned, even though failed > 0")

	p.RetryFailed()
	assert.Equal(t, 0, p.NumFailed())
	assert.Equal(t, 1, p.NumWaiting())
}

func TestProgress(t *testing.T) {
	p := New("P", proto.ExtPNG, 1, 4)
	assert.InDelta(t, 0.0, p.Progress(), 1e-9)

	for i := 0; i < 3; i++ {
		p.CompleteFrame(p.TakeNextWaiting())
	}
	assert.InDelta(t, 0.75, p.Progress(), 1e-9)

	p.Fail(p.TakeNextWaiting())
	assert.InDelta(t, 0.75, p.Progress(), 1e-9, "failed frames don't count toward progress")
	assert.True(t, p.Complete())
}
