// Package registry keeps the client's view of known projects. A view is
// either the authoritative remote list or the fixed fallback seed list,
// never a mix of the two.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/bang0930/mcp-web/internal/apiclient"
	"github.com/bang0930/mcp-web/internal/auth"
	"github.com/bang0930/mcp-web/internal/models"
)

// Source tags where a view came from.
type Source int

const (
	Authoritative Source = iota
	Fallback
)

func (s Source) String() string {
	if s == Fallback {
		return "fallback"
	}
	return "authoritative"
}

// ReasonKind explains why a fallback view is shown.
type ReasonKind int

const (
	// NoSession means no usable credential was available.
	NoSession ReasonKind = iota + 1
	// Unreachable means the projects service did not answer.
	Unreachable
	// BackendError means the service answered with an error.
	BackendError
	// Empty means the service answered with no projects.
	Empty
)

func (k ReasonKind) String() string {
	switch k {
	case NoSession:
		return "no-session"
	case Unreachable:
		return "unreachable"
	case BackendError:
		return "backend-error"
	case Empty:
		return "empty"
	}
	return "unknown"
}

// Reason is attached to every fallback view.
type Reason struct {
	Kind    ReasonKind
	Message string
}

// Notice renders the informational message shown with a fallback view.
func (r Reason) Notice() string {
	switch r.Kind {
	case NoSession, Unreachable:
		return "no backend available, showing sample projects"
	case BackendError:
		return fmt.Sprintf("backend error: %s, showing sample projects", r.Message)
	case Empty:
		return "no projects found, showing sample projects"
	}
	return "showing sample projects"
}

// View is a snapshot of the registry. Reason is nil for authoritative views.
type View struct {
	Source   Source
	Projects []models.Project
	Reason   *Reason
}

// IsFallback reports whether the view holds the seed list.
func (v View) IsFallback() bool {
	return v.Source == Fallback
}

// Lister fetches the authoritative project list.
type Lister interface {
	ListProjects(ctx context.Context, token string) ([]models.Project, error)
}

// Option customises a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithNotifier registers fn to receive the reason whenever a refresh falls
// back. fn must not block.
func WithNotifier(fn func(Reason)) Option {
	return func(r *Registry) {
		r.notify = fn
	}
}

// Registry owns the cached project list.
type Registry struct {
	lister Lister
	logger *zap.Logger
	notify func(Reason)

	mu              sync.RWMutex
	view            View
	nextProvisional int64
}

// New creates a registry. Until the first Refresh it shows the fallback set.
func New(lister Lister, opts ...Option) *Registry {
	r := &Registry{
		lister:          lister,
		logger:          zap.NewNop(),
		nextProvisional: -1,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("registry")
	r.view = fallbackView(Reason{Kind: NoSession})
	return r
}

// Refresh replaces the view with the authoritative list, or wholesale with
// the fallback set on any failure or an empty answer. It never fails.
func (r *Registry) Refresh(ctx context.Context, session auth.Session) View {
	view := r.fetch(ctx, session)

	r.mu.Lock()
	r.view = view
	r.mu.Unlock()

	if view.Reason != nil {
		r.logger.Warn("showing fallback projects",
			zap.String("reason", view.Reason.Kind.String()),
			zap.String("message", view.Reason.Message))
		if r.notify != nil {
			r.notify(*view.Reason)
		}
	}
	return copyView(view)
}

func (r *Registry) fetch(ctx context.Context, session auth.Session) View {
	if !session.Authenticated() || r.lister == nil {
		return fallbackView(Reason{Kind: NoSession})
	}
	projects, err := r.lister.ListProjects(ctx, session.Token())
	switch {
	case errors.Is(err, apiclient.ErrUnauthenticated):
		return fallbackView(Reason{Kind: NoSession})
	case apiclient.IsUnreachable(err):
		return fallbackView(Reason{Kind: Unreachable, Message: apiclient.Message(err)})
	case err != nil:
		return fallbackView(Reason{Kind: BackendError, Message: apiclient.Message(err)})
	case len(projects) == 0:
		return fallbackView(Reason{Kind: Empty})
	}
	return View{Source: Authoritative, Projects: projects}
}

// Current returns a copy of the current view.
func (r *Registry) Current() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyView(r.view)
}

// Filter returns the projects whose name or repository contains query,
// case-insensitively. An empty query returns everything.
func (r *Registry) Filter(query string) []models.Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return FilterProjects(r.view.Projects, query)
}

// FilterProjects applies the registry search to an arbitrary list.
func FilterProjects(projects []models.Project, query string) []models.Project {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.Project, 0, len(projects))
	for _, p := range projects {
		if q == "" ||
			strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Repository), q) {
			out = append(out, p)
		}
	}
	return out
}

// Find returns the project with id from the current view.
func (r *Registry) Find(id int64) (models.Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.view.Projects {
		if p.ID == id {
			return p, true
		}
	}
	return models.Project{}, false
}

// Add registers a newly created project in an authoritative view. A zero id
// is replaced by a provisional negative one until the next refresh. Fallback
// views are left untouched so seed data never mixes with real projects; Add
// then reports false. A project whose service id is already listed is not
// added again and the listed entry is returned.
func (r *Registry) Add(p models.Project) (models.Project, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.view.Source != Authoritative {
		return p, false
	}
	if sid := p.ServiceIDValue(); sid != "" {
		for _, existing := range r.view.Projects {
			if existing.ServiceIDValue() == sid {
				return existing, false
			}
		}
	}
	if p.ID == 0 {
		p.ID = r.nextProvisional
		r.nextProvisional--
	}
	r.view.Projects = append(r.view.Projects, p)
	return p, true
}

// Remove drops the project with id from the current view.
func (r *Registry) Remove(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.view.Projects {
		if p.ID == id {
			projects := make([]models.Project, 0, len(r.view.Projects)-1)
			projects = append(projects, r.view.Projects[:i]...)
			projects = append(projects, r.view.Projects[i+1:]...)
			r.view.Projects = projects
			return true
		}
	}
	return false
}

func fallbackView(reason Reason) View {
	return View{Source: Fallback, Projects: FallbackProjects(), Reason: &reason}
}

func copyView(v View) View {
	out := View{Source: v.Source, Projects: append([]models.Project(nil), v.Projects...)}
	if v.Reason != nil {
		reason := *v.Reason
		out.Reason = &reason
	}
	return out
}
