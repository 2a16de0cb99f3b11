package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/calsync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteCreds() remote.Credentials {
	return remote.Credentials{Username: "u", Password: "p"}
}

func TestJournal_OpenClose(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "state", "journal.db"))
	require.NoError(t, j.Open())
	assert.Error(t, j.Open(), "second open fails")
	require.NoError(t, j.Close())
	assert.Error(t, j.Close())
}

func TestJournal_RecordAndHistory(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, j.Open())
	defer j.Close()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Record(JournalEvent{Entry: 1, Kind: EventPull, Size: 100, At: base}))
	require.NoError(t, j.Record(JournalEvent{Entry: 2, Kind: EventPush, Size: 200, At: base.Add(time.Minute)}))
	require.NoError(t, j.Record(JournalEvent{Entry: 1, Kind: EventPush, Size: 300, At: base.Add(2 * time.Minute)}))
	require.NoError(t, j.Record(JournalEvent{Kind: EventReload}))

	count, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	entryOne, err := j.History(1, 0)
	require.NoError(t, err)
	require.Len(t, entryOne, 2)
	assert.Equal(t, EventPush, entryOne[0].Kind)
	assert.Equal(t, int64(300), entryOne[0].Size)
	assert.True(t, entryOne[1].At.Equal(base))

	all, err := j.History(0, 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, EventReload, all[0].Kind)
	assert.False(t, all[0].At.IsZero())
}
