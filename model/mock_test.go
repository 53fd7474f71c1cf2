package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tshapedconsultant/datateam/core"
)

func TestMockBackendScriptedOrder(t *testing.T) {
	mock := NewMockBackend()
	mock.EnqueueText("first")
	id := mock.EnqueueToolCall("execute_python_analysis", map[string]any{"code": "x = 1"})
	mock.EnqueueError(errors.New("backend down"))

	resp, err := mock.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Message.Content)

	resp, err = mock.Complete(context.Background(), Request{})
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, id, resp.Message.ToolCalls[0].ID)

	_, err = mock.Complete(context.Background(), Request{})
	assert.EqualError(t, err, "backend down")
}

func TestMockBackendScriptedMessage(t *testing.T) {
	mock := NewMockBackend()
	mock.EnqueueMessage(core.Message{
		Role:      core.RoleAI,
		Content:   "Running the numbers now.",
		ToolCalls: []core.ToolCall{{ID: "call_1", Name: "execute_python_analysis", Args: map[string]any{"code": "pass"}}},
	})

	resp, err := mock.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "Running the numbers now.", resp.Message.Content)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.Message.ToolCalls[0].ID)
}

func TestMockBackendDefaults(t *testing.T) {
	mock := NewMockBackend()

	resp, err := mock.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Message.Content)

	resp, err = mock.Complete(context.Background(), Request{Schema: &ResponseSchema{Name: "route"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(resp.Structured))
}

func TestMockBackendRecordsRequests(t *testing.T) {
	mock := NewMockBackend()
	_, err := mock.Complete(context.Background(), Request{
		Instructions: "be helpful",
		Messages:     []core.Message{core.NewHumanMessage("hi")},
	})
	require.NoError(t, err)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "be helpful", reqs[0].Instructions)
}

func TestMockBackendHonorsContext(t *testing.T) {
	mock := NewMockBackend()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mock.Complete(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, mock.Requests())
}
