package sync

import (
	"sort"
	"sync"
	"time"
)

// EntryStatus is a snapshot of one entry for the control plane.
type EntryStatus struct {
	Index       int       `json:"index"`
	Local       string    `json:"local"`
	Remote      string    `json:"remote"`
	Regime      string    `json:"regime"`
	LastTick    time.Time `json:"lastTick"`
	LastPush    time.Time `json:"lastPush"`
	LastPull    time.Time `json:"lastPull"`
	LocalStamp  time.Time `json:"localStamp"`
	RemoteStamp int64     `json:"remoteStamp"`
	LastError   string    `json:"lastError,omitempty"`
	ErrorCount  int       `json:"errorCount"`
}

// Status is the shared, mutex guarded view of all entries. Entry loops write
// to it, readers get copies.
type Status struct {
	mu      sync.RWMutex
	entries map[int]*EntryStatus
}

func NewStatus() *Status {
	return &Status{
		entries: make(map[int]*EntryStatus),
	}
}

func (s *Status) Register(index int, local, remote string) {
	s.update(index, func(st *EntryStatus) {
		st.Local = local
		st.Remote = remote
		st.Regime = RegimeNormal.String()
	})
}

func (s *Status) SetTick(e *Entry) {
	s.update(e.Index, func(st *EntryStatus) {
		st.LastTick = time.Now()
		st.Regime = e.regime.Regime().String()
		st.LocalStamp = e.lastLocalStamp
		st.RemoteStamp = e.lastRemoteStamp
		st.LastError = ""
	})
}

func (s *Status) SetPush(index int) {
	s.update(index, func(st *EntryStatus) {
		st.LastPush = time.Now()
	})
}

func (s *Status) SetPull(index int) {
	s.update(index, func(st *EntryStatus) {
		st.LastPull = time.Now()
	})
}

func (s *Status) SetError(index int, err error) {
	s.update(index, func(st *EntryStatus) {
		st.LastTick = time.Now()
		st.LastError = err.Error()
		st.ErrorCount++
	})
}

func (s *Status) Get(index int) (EntryStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.entries[index]
	if !ok {
		return EntryStatus{}, false
	}
	return *st, true
}

// All returns every entry ordered by index.
func (s *Status) All() []EntryStatus {
	s.mu.RLock()
	out := make([]EntryStatus, 0, len(s.entries))
	for _, st := range s.entries {
		out = append(out, *st)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (s *Status) update(index int, fn func(*EntryStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.entries[index]
	if !ok {
		st = &EntryStatus{Index: index}
		s.entries[index] = st
	}
	fn(st)
}
