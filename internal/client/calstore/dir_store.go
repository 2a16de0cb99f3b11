package calstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/openmined/calsync/internal/fileio"
	"github.com/openmined/calsync/internal/ical"
	"github.com/openmined/calsync/internal/utils"
)

// DirStore keeps one calendar file per event or todo, named after its UID.
type DirStore struct {
	dir     string
	pattern string
	retrier *fileio.Retrier
}

var _ Store = (*DirStore)(nil)

func NewDirStore(dir string, retrier *fileio.Retrier, pattern string) (*DirStore, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid file pattern %q", pattern)
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create calendar directory: %w", err)
	}
	return &DirStore{dir: dir, pattern: pattern, retrier: retrier}, nil
}

func (s *DirStore) Path() string {
	return s.dir
}

func (s *DirStore) Exists() bool {
	return utils.DirExists(s.dir)
}

// ModTime is the newest modification time among the member files.
func (s *DirStore) ModTime() (time.Time, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return time.Time{}, err
	}

	var latest time.Time
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !s.matches(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between listing and stat
			continue
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, nil
}

// Load merges the member files into one calendar. Time zone definitions
// shared by several members are emitted once.
func (s *DirStore) Load(ctx context.Context) ([]byte, error) {
	names, err := s.members(ctx)
	if err != nil {
		return nil, err
	}

	var (
		components []ical.Component
		zones      = mapset.NewThreadUnsafeSet[string]()
		total      int
	)
	for _, name := range names {
		cal, size, err := s.loadMember(ctx, filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		total += size

		for _, c := range cal.Components {
			switch {
			case c.IsItem():
				components = append(components, c)
			case c.Name == "VTIMEZONE":
				if zones.Add(c.Property("TZID")) {
					components = append(components, c)
				}
			}
		}
	}

	slog.Debug("calstore dir load", "dir", s.dir, "files", len(names), "size", humanize.Bytes(uint64(total)))
	return ical.Wrap(components...), nil
}

// loadMember reads and parses one file. A file that fails to parse may be
// mid-write, so read and parse are retried together.
func (s *DirStore) loadMember(ctx context.Context, path string) (*ical.Calendar, int, error) {
	var (
		cal  *ical.Calendar
		size int
	)
	err := s.retrier.Do(ctx, "parse "+path, func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		size = len(data)
		cal, err = ical.Parse(data)
		return err
	})
	return cal, size, err
}

// Save splits data into one file per UID and prunes member files that are no
// longer part of the calendar.
func (s *DirStore) Save(ctx context.Context, data []byte) error {
	cal, err := ical.Parse(data)
	if err != nil {
		return err
	}

	var zones []ical.Component
	for _, c := range cal.Components {
		if c.Name == "VTIMEZONE" {
			zones = append(zones, c)
		}
	}

	// a recurring master and its overrides share a UID and one member file
	var order []string
	groups := make(map[string][]ical.Component)
	for _, c := range cal.Components {
		if !c.IsItem() {
			continue
		}
		name, ok := s.memberName(c.UID())
		if !ok {
			slog.Debug("calstore dir skip component", "dir", s.dir, "component", c.Name, "uid", c.UID())
			continue
		}
		if _, seen := groups[name]; !seen {
			order = append(order, name)
		}
		groups[name] = append(groups[name], c)
	}

	written := mapset.NewThreadUnsafeSet[string]()
	for _, name := range order {
		items := groups[name]
		member := ical.Wrap(append(usedZones(zones, items...), items...)...)
		if err := s.retrier.WriteFile(ctx, filepath.Join(s.dir, name), member); err != nil {
			return err
		}
		written.Add(name)
	}

	names, err := s.members(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if written.Contains(name) {
			continue
		}
		slog.Debug("calstore dir prune", "dir", s.dir, "file", name)
		if err := s.retrier.Remove(ctx, filepath.Join(s.dir, name)); err != nil {
			return err
		}
	}

	slog.Debug("calstore dir save", "dir", s.dir, "files", written.Cardinality(), "size", humanize.Bytes(uint64(len(data))))
	return nil
}

// SaveNotice writes the notice as an extra member file and leaves the others
// in place.
func (s *DirStore) SaveNotice(ctx context.Context, data []byte) error {
	cal, err := ical.Parse(data)
	if err != nil {
		return err
	}
	for _, c := range cal.Components {
		if !c.IsItem() {
			continue
		}
		name, ok := s.memberName(c.UID())
		if !ok {
			continue
		}
		return s.retrier.WriteFile(ctx, filepath.Join(s.dir, name), ical.Wrap(c))
	}
	return errors.New("notice has no usable event")
}

func (s *DirStore) members(ctx context.Context) ([]string, error) {
	names, err := s.retrier.ListFiles(ctx, s.dir)
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, name := range names {
		if s.matches(name) {
			out = append(out, name)
		}
	}
	return out, nil
}

func (s *DirStore) matches(name string) bool {
	ok, _ := doublestar.Match(s.pattern, name)
	return ok
}

// memberName derives the file name for a UID. Names that would escape the
// directory or not match the member pattern are rejected.
func (s *DirStore) memberName(uid string) (string, bool) {
	if uid == "" {
		return "", false
	}
	name := strings.ReplaceAll(uid, "@", "-") + ".ics"
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", false
	}
	if !s.matches(name) {
		return "", false
	}
	return name, true
}

// usedZones returns the time zone components referenced by items.
func usedZones(zones []ical.Component, items ...ical.Component) []ical.Component {
	var used []ical.Component
	var body strings.Builder
	for _, c := range items {
		body.WriteString(strings.Join(c.Lines, "\n"))
		body.WriteString("\n")
	}
	for _, z := range zones {
		tzid := z.Property("TZID")
		if tzid != "" && strings.Contains(body.String(), "TZID="+tzid) {
			used = append(used, z)
		}
	}
	return used
}
