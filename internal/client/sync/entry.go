package sync

import (
	"sync/atomic"
	"time"

	"github.com/openmined/calsync/internal/client/calstore"
	"github.com/openmined/calsync/internal/remote"
)

// Entry pairs one local calendar with one remote calendar. Its sync state is
// owned by the goroutine running the entry and is never shared.
type Entry struct {
	Index       int
	Local       calstore.Store
	RemoteURL   string
	Credentials remote.Credentials

	// bytes last written to or read from the local store
	lastKnown       []byte
	lastLocalStamp  time.Time
	localObserved   bool
	lastRemoteStamp int64
	lastRemoteCheck time.Time

	regime *RegimeScheduler

	wake        chan struct{}
	forceRemote atomic.Bool
}

func NewEntry(index int, local calstore.Store, remoteURL string, creds remote.Credentials) *Entry {
	return &Entry{
		Index:       index,
		Local:       local,
		RemoteURL:   remoteURL,
		Credentials: creds,
		wake:        make(chan struct{}, 1),
	}
}

func (e *Entry) request(data []byte) *remote.SyncRequest {
	return &remote.SyncRequest{
		RemoteURL:   e.RemoteURL,
		Credentials: e.Credentials,
		LocalPath:   e.Local.Path(),
		Data:        data,
	}
}

// Wake makes the entry tick now. With forceRemote the tick also checks the
// remote regardless of the remote interval.
func (e *Entry) Wake(forceRemote bool) {
	if forceRemote {
		e.forceRemote.Store(true)
	}
	select {
	case e.wake <- struct{}{}:
	default:
	}
}
