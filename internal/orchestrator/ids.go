package orchestrator

import (
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// IDGenerator issues time-ordered service identifiers of the form
// "svc-<unix millis>". Identifiers are strictly increasing within a process
// even when two are issued in the same millisecond.
type IDGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewIDGenerator creates a generator. now may be nil.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns a fresh identifier.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return "svc-" + strconv.FormatInt(ms, 10)
}

// RepoID derives the repository identifier from its URL: the last non-empty
// path segment, or the whole URL when there is no path.
func RepoID(repositoryURL string) string {
	trimmed := strings.TrimSpace(repositoryURL)
	u, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return trimmed
	}
	segments := strings.Split(path, "/")
	last := segments[len(segments)-1]
	if last == "" {
		return trimmed
	}
	return last
}
