package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tshapedconsultant/datateam/core"
	"github.com/tshapedconsultant/datateam/model"
)

func newTestSupervisor(backend model.Backend) *Supervisor {
	return NewSupervisor(backend, []string{DataAnalystName, BusinessStrategistName})
}

func TestSupervisorValidDecision(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueStructured(`{"next": "Data_Analyst", "reasoning": "user wants numbers"}`)

	next, reasoning := newTestSupervisor(backend).Decide(context.Background(), core.NewInitialState("analyze sales"))

	assert.Equal(t, DataAnalystName, next)
	assert.Equal(t, "user wants numbers", reasoning)

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Schema)
	assert.Equal(t, "route", reqs[0].Schema.Name)
}

func TestSupervisorRewritesRetiredAlias(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueStructured(`{"next": "Visualizer", "reasoning": "Visualizer should chart this"}`)

	next, reasoning := newTestSupervisor(backend).Decide(context.Background(), core.NewInitialState("chart it"))

	assert.Equal(t, BusinessStrategistName, next)
	assert.NotContains(t, reasoning, "Visualizer")
	assert.Contains(t, reasoning, BusinessStrategistName)
}

func TestSupervisorRewritesLowercaseAlias(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueStructured(`{"next": "the visualizer", "reasoning": "send to visualizer"}`)

	next, _ := newTestSupervisor(backend).Decide(context.Background(), core.NewInitialState("chart it"))

	assert.Equal(t, BusinessStrategistName, next)
}

func TestSupervisorInvalidRouting(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueStructured(`{"next": "Mystery_Agent", "reasoning": "no idea"}`)

	next, reasoning := newTestSupervisor(backend).Decide(context.Background(), core.NewInitialState("q"))

	assert.Equal(t, core.Finish, next)
	assert.Equal(t, "Invalid routing 'Mystery_Agent' detected. Forcing termination.", reasoning)
}

func TestSupervisorFinishIsValid(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueStructured(`{"next": "FINISH", "reasoning": "all done"}`)

	next, reasoning := newTestSupervisor(backend).Decide(context.Background(), core.NewInitialState("q"))

	assert.Equal(t, core.Finish, next)
	assert.Equal(t, "all done", reasoning)
}

func TestSupervisorBackendFailure(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueError(errors.New("model unavailable"))

	next, reasoning := newTestSupervisor(backend).Decide(context.Background(), core.NewInitialState("q"))

	assert.Equal(t, core.Finish, next)
	assert.Contains(t, reasoning, "Supervisor error:")
	assert.Contains(t, reasoning, "model unavailable")
}

func TestSupervisorMalformedStructuredPayload(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueStructured(`not json at all`)

	next, reasoning := newTestSupervisor(backend).Decide(context.Background(), core.NewInitialState("q"))

	assert.Equal(t, core.Finish, next)
	assert.Contains(t, reasoning, "Supervisor error:")
}
