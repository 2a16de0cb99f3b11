package sync

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_UpdatesAndOrder(t *testing.T) {
	s := NewStatus()
	s.Register(2, "/b.ics", "https://b")
	s.Register(1, "/a.ics", "https://a")

	s.SetPush(1)
	s.SetError(2, errors.New("disk full"))
	s.SetError(2, errors.New("disk full"))

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].Index)
	assert.Equal(t, 2, all[1].Index)
	assert.False(t, all[0].LastPush.IsZero())
	assert.Equal(t, "disk full", all[1].LastError)
	assert.Equal(t, 2, all[1].ErrorCount)

	entry := NewEntry(2, newMemStore(""), "https://b", remoteCreds())
	entry.regime = NewRegimeScheduler(time.Second, time.Second, 1)
	entry.regime.EnterFast()
	s.SetTick(entry)

	st, ok := s.Get(2)
	require.True(t, ok)
	assert.Empty(t, st.LastError, "a good tick clears the error")
	assert.Equal(t, "fast", st.Regime)

	_, ok = s.Get(9)
	assert.False(t, ok)
}
