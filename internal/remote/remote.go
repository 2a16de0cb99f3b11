// Package remote fetches and pushes calendars held by a remote service. The
// sync engine only sees the Provider interface; concrete providers are
// chosen by URL scheme.
package remote

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
)

// ErrorMarker is embedded in a calendar payload when the provider could not
// fetch the real calendar. Consumers must treat such a payload as "no news".
const ErrorMarker = "X-CALSYNC-FETCH-ERROR"

var ErrUnsupportedScheme = errors.New("remote: unsupported url scheme")

type Credentials struct {
	Username string
	Password string
}

// SyncRequest describes one provider call. It is built per call and not
// retained by the caller.
type SyncRequest struct {
	RemoteURL   string
	Credentials Credentials
	LocalPath   string
	Data        []byte
}

// Calendar is a remote calendar snapshot. Stamp changes whenever the remote
// content may have changed and is only ever compared for inequality.
type Calendar struct {
	Stamp int64
	data  []byte
}

func NewCalendar(data []byte) *Calendar {
	return &Calendar{Stamp: stampOf(data), data: data}
}

func (c *Calendar) Bytes() ([]byte, error) {
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out, nil
}

// IsError reports whether the payload carries the error marker.
func (c *Calendar) IsError() bool {
	return bytes.Contains(c.data, []byte(ErrorMarker))
}

type Provider interface {
	GetCalendar(ctx context.Context, req *SyncRequest) (*Calendar, error)
	// PushNow uploads req.Data and returns once the remote has it.
	PushNow(ctx context.Context, req *SyncRequest) error
	// NotifyChanged schedules an upload of req.Data and returns immediately.
	NotifyChanged(ctx context.Context, req *SyncRequest)
}

// errorCalendar wraps a fetch failure into a marker payload.
func errorCalendar(err error) *Calendar {
	data := []byte("BEGIN:VCALENDAR\r\n" + ErrorMarker + ":" + sanitize(err.Error()) + "\r\nEND:VCALENDAR\r\n")
	return &Calendar{Stamp: -1, data: data}
}

func sanitize(s string) string {
	return string(bytes.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, []byte(s)))
}

func stampOf(data []byte) int64 {
	h := fnv.New64a()
	h.Write(data)
	return int64(h.Sum64())
}
