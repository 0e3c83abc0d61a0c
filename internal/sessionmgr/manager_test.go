package sessionmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateReturnsExistingWhenNotEnforced(t *testing.T) {
	m := NewManager()
	id, err := m.Create(SessionConfig{RequestedID: "fixed", Strategy: PerSession})
	require.NoError(t, err)
	id2, err := m.Create(SessionConfig{RequestedID: "fixed", Strategy: PerSession})
	require.NoError(t, err)
	assert.Equal(t, id, id2)
}

func TestCreateRejectsExistingWhenEnforced(t *testing.T) {
	m := NewManager()
	_, err := m.Create(SessionConfig{RequestedID: "fixed"})
	require.NoError(t, err)
	_, err = m.Create(SessionConfig{RequestedID: "fixed", EnforceNewSession: true})
	assert.ErrorIs(t, err, ErrSessionExists)
}

func TestSetCurrentAppendsHistoryIdempotently(t *testing.T) {
	m := NewManager()
	id, err := m.Create(SessionConfig{Strategy: PerSession})
	require.NoError(t, err)
	meta := NewContainerMeta(id, "c1", "python:3.9-slim", "it_c1", "/tmp/ws")

	require.NoError(t, m.SetCurrent(id, meta))
	require.NoError(t, m.SetCurrent(id, meta))

	s, err := m.Get(id)
	require.NoError(t, err)
	assert.Len(t, s.ContainerHistory, 1)
}

func TestByContainerAndUpdateState(t *testing.T) {
	m := NewManager()
	id, err := m.Create(SessionConfig{Strategy: PerSession})
	require.NoError(t, err)
	meta := NewContainerMeta(id, "c1", "python:3.9-slim", "it_c1", "/tmp/ws")
	require.NoError(t, m.SetCurrent(id, meta))

	m.UpdateContainerState("c1", true)
	got, ok := m.ByContainer("c1")
	require.True(t, ok)
	assert.True(t, got.IsRunning)
	assert.False(t, got.LastExecutedAt.IsZero())
}

func TestTakeIdleByImage(t *testing.T) {
	m := NewManager()
	id, err := m.Create(SessionConfig{Strategy: PerSession})
	require.NoError(t, err)
	meta := NewContainerMeta(id, "c1", "python:3.9-slim", "it_c1", "/tmp/ws")
	require.NoError(t, m.RetainIdle(id, meta))

	none, err := m.TakeIdleByImage(id, "node:18-alpine")
	require.NoError(t, err)
	assert.Nil(t, none)

	match, err := m.TakeIdleByImage(id, "python:3.9-slim")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "c1", match.ContainerID)

	s, err := m.Get(id)
	require.NoError(t, err)
	assert.Empty(t, s.IdleRetained)
}

func TestDeleteClearsIndex(t *testing.T) {
	m := NewManager()
	id, err := m.Create(SessionConfig{Strategy: PerSession})
	require.NoError(t, err)
	meta := NewContainerMeta(id, "c1", "python:3.9-slim", "it_c1", "/tmp/ws")
	require.NoError(t, m.SetCurrent(id, meta))

	m.Delete(id)
	_, err = m.Get(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, ok := m.ByContainer("c1")
	assert.False(t, ok)
}
