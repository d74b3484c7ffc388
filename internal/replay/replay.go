// Package replay retries work the create and destroy workflows left behind:
// drafts whose profile write failed and infrastructure whose release failed.
package replay

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bang0930/mcp-web/internal/apiclient"
	"github.com/bang0930/mcp-web/internal/audit"
	"github.com/bang0930/mcp-web/internal/auth"
	"github.com/bang0930/mcp-web/internal/models"
)

// Queue is the local store of retained work.
type Queue interface {
	ListPendingProfiles() ([]models.PendingProfile, error)
	MarkProfileAttempt(id, lastError string) error
	DeletePendingProfile(id string) error

	ListPendingReleases() ([]models.PendingRelease, error)
	MarkReleaseAttempt(id, lastError string) error
	DeletePendingRelease(id string) error
}

// ProfileWriter persists a draft on the user profile.
type ProfileWriter interface {
	PutProfile(ctx context.Context, token string, input apiclient.ProfileInput) (apiclient.Profile, error)
}

// InfraDestroyer releases an instance.
type InfraDestroyer interface {
	Destroy(ctx context.Context, token string, input apiclient.DestroyInput) error
}

// Summary counts the outcome of one replay pass.
type Summary struct {
	Attempted int `json:"attempted" yaml:"attempted"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
}

// Replayer retries retained work one item at a time.
type Replayer struct {
	queue    Queue
	profiles ProfileWriter
	infra    InfraDestroyer
	audit    *audit.Recorder
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// New creates a replayer issuing at most ratePerSecond calls per second.
func New(queue Queue, profiles ProfileWriter, infra InfraDestroyer, recorder *audit.Recorder, ratePerSecond float64, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Replayer{
		queue:    queue,
		profiles: profiles,
		infra:    infra,
		audit:    recorder,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.Named("replay"),
	}
}

// RetryProfiles re-sends every retained draft. Successes are removed from
// the queue; failures stay with their attempt count increased.
func (r *Replayer) RetryProfiles(ctx context.Context, session auth.Session) (Summary, error) {
	if !session.Authenticated() {
		return Summary{}, apiclient.ErrUnauthenticated
	}
	pending, err := r.queue.ListPendingProfiles()
	if err != nil {
		return Summary{}, fmt.Errorf("list pending profiles: %w", err)
	}

	var sum Summary
	for _, p := range pending {
		if err := r.limiter.Wait(ctx); err != nil {
			return sum, err
		}
		sum.Attempted++
		_, err := r.profiles.PutProfile(ctx, session.Token(), apiclient.ProfileInput{
			RepositoryURL: p.RepositoryURL,
			Requirements:  p.Requirements,
		})
		if err != nil {
			sum.Failed++
			r.logger.Warn("profile replay failed", zap.String("repository_url", p.RepositoryURL), zap.Error(err))
			if merr := r.queue.MarkProfileAttempt(p.ID, apiclient.Message(err)); merr != nil {
				return sum, fmt.Errorf("mark profile attempt: %w", merr)
			}
			r.record(audit.ActionReplayProfile, p.RepositoryURL, "failed", apiclient.Message(err))
			continue
		}
		sum.Succeeded++
		if err := r.queue.DeletePendingProfile(p.ID); err != nil {
			return sum, fmt.Errorf("delete pending profile: %w", err)
		}
		r.record(audit.ActionReplayProfile, p.RepositoryURL, "succeeded", "")
	}
	return sum, nil
}

// RetryReleases re-issues every pending infrastructure release.
func (r *Replayer) RetryReleases(ctx context.Context, session auth.Session) (Summary, error) {
	if !session.Authenticated() {
		return Summary{}, apiclient.ErrUnauthenticated
	}
	pending, err := r.queue.ListPendingReleases()
	if err != nil {
		return Summary{}, fmt.Errorf("list pending releases: %w", err)
	}

	var sum Summary
	for _, p := range pending {
		if err := r.limiter.Wait(ctx); err != nil {
			return sum, err
		}
		sum.Attempted++
		err := r.infra.Destroy(ctx, session.Token(), apiclient.DestroyInput{
			ServiceID:  p.ServiceID,
			InstanceID: p.InstanceID,
		})
		inputs := map[string]string{"service_id": p.ServiceID, "instance_id": p.InstanceID}
		if err != nil {
			sum.Failed++
			r.logger.Warn("release replay failed",
				zap.String("service_id", p.ServiceID),
				zap.String("instance_id", p.InstanceID),
				zap.Error(err))
			if merr := r.queue.MarkReleaseAttempt(p.ID, apiclient.Message(err)); merr != nil {
				return sum, fmt.Errorf("mark release attempt: %w", merr)
			}
			r.record(audit.ActionReplayRelease, inputs, "failed", apiclient.Message(err))
			continue
		}
		sum.Succeeded++
		if err := r.queue.DeletePendingRelease(p.ID); err != nil {
			return sum, fmt.Errorf("delete pending release: %w", err)
		}
		r.record(audit.ActionReplayRelease, inputs, "succeeded", "")
	}
	return sum, nil
}

func (r *Replayer) record(action string, inputs any, outcome, details string) {
	if _, err := r.audit.Record(action, inputs, outcome, details); err != nil {
		r.logger.Warn("failed to write workflow record", zap.Error(err))
	}
}
