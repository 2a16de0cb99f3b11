package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/openmined/calsync/internal/client/calstore"
	"github.com/openmined/calsync/internal/remote"
)

type memStore struct {
	mu      gosync.Mutex
	path    string
	exists  bool
	data    []byte
	modTime time.Time
	saves   int
	notices int
}

var _ calstore.Store = (*memStore)(nil)

func newMemStore(data string) *memStore {
	s := &memStore{path: "/cal/test.ics"}
	if data != "" {
		s.exists = true
		s.data = []byte(data)
		s.modTime = time.Unix(1000, 0)
	}
	return s
}

// edit simulates a user edit with a new modification time.
func (s *memStore) edit(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exists = true
	s.data = []byte(data)
	s.modTime = s.modTime.Add(time.Second)
}

func (s *memStore) Path() string { return s.path }

func (s *memStore) Exists() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exists
}

func (s *memStore) ModTime() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modTime, nil
}

func (s *memStore) Load(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...), nil
}

func (s *memStore) Save(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exists = true
	s.data = append([]byte(nil), data...)
	s.modTime = s.modTime.Add(time.Second)
	s.saves++
	return nil
}

func (s *memStore) SaveNotice(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices++
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *memStore) content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.data)
}

type fakeProvider struct {
	mu       gosync.Mutex
	calendar *remote.Calendar
	gets     int
	pushes   [][]byte
	notifies [][]byte
}

func (p *fakeProvider) setRemote(stamp int64, data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cal := remote.NewCalendar([]byte(data))
	cal.Stamp = stamp
	p.calendar = cal
}

func (p *fakeProvider) GetCalendar(ctx context.Context, sr *remote.SyncRequest) (*remote.Calendar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gets++
	return p.calendar, nil
}

func (p *fakeProvider) PushNow(ctx context.Context, sr *remote.SyncRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, sr.Data)
	return nil
}

func (p *fakeProvider) NotifyChanged(ctx context.Context, sr *remote.SyncRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifies = append(p.notifies, sr.Data)
}

func (p *fakeProvider) counts() (gets, pushes, notifies int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gets, len(p.pushes), len(p.notifies)
}

type fakeReloader struct {
	mu       gosync.Mutex
	requests int
	runs     int
}

func (r *fakeReloader) Request() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests++
}

func (r *fakeReloader) RunNow(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
}

func (r *fakeReloader) counts() (requests, runs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests, r.runs
}

func calendarWith(summary string) string {
	return "BEGIN:VCALENDAR\r\n" +
		"PRODID:-//Test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:evt-1\r\n" +
		"DTSTAMP:20240101T000000Z\r\n" +
		"SUMMARY:" + summary + "\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
}

// restamped is the same calendar as calendarWith with volatile fields changed.
func restamped(summary string) string {
	return "BEGIN:VCALENDAR\r\n" +
		"PRODID:-//Remote//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:evt-1-remote\r\n" +
		"DTSTAMP:20250505T050505Z\r\n" +
		"SUMMARY:" + summary + "\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
}
