// Package utils provides helpers shared by the calsync daemon and CLI.
package utils

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

// LogInterceptor prefixes every complete line written to it with a sequence
// number and a timestamp before forwarding it to the target writer.
// Partial lines are buffered until their newline arrives or Close is called.
type LogInterceptor struct {
	target  io.Writer
	mu      sync.Mutex
	seq     uint64
	pending bytes.Buffer
	now     func() time.Time
}

func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{target: target, now: time.Now}
}

func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending.Write(p)
	for {
		idx := bytes.IndexByte(i.pending.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := i.pending.Next(idx + 1)
		if err := i.writeLine(bytes.TrimRight(line, "\r\n")); err != nil {
			return 0, err
		}
	}

	// the caller's bytes are fully accepted even if they are still buffered
	return len(p), nil
}

// Close flushes a trailing partial line and closes the target when it is a Closer.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.pending.Len() > 0 {
		line := bytes.TrimRight(i.pending.Bytes(), "\r\n")
		i.pending.Reset()
		if err := i.writeLine(line); err != nil {
			return err
		}
	}

	if c, ok := i.target.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (i *LogInterceptor) writeLine(line []byte) error {
	i.seq++
	var b bytes.Buffer
	b.WriteString(slog.Uint64("line", i.seq).String())
	b.WriteByte(' ')
	b.WriteString(slog.String("time", i.now().Format(time.RFC3339)).String())
	b.WriteByte(' ')
	b.Write(line)
	b.WriteByte('\n')
	_, err := i.target.Write(b.Bytes())
	return err
}
