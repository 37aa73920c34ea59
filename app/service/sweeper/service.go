package sweeper

import (
	"avachat/app/config"
	"avachat/app/service/finalize"
	"avachat/app/service/session"
	"context"
	"log/slog"
	"time"

	"github.com/samber/do"
)

type Finalizer interface {
	Finalize(ctx context.Context, conversationID string) *session.FinalSummary
}

// Service periodically scans the session store and finalizes conversations
// that went idle. It runs on a single goroutine, so sweeps never overlap and
// the ticker coalesces ticks missed during a slow cycle.
type Service struct {
	cfg       *config.Config
	store     *session.Store
	finalizer Finalizer
}

func New(di *do.Injector) (*Service, error) {
	return NewService(
		do.MustInvoke[*config.Config](di),
		do.MustInvoke[*session.Store](di),
		do.MustInvoke[*finalize.Service](di),
	), nil
}

func NewService(cfg *config.Config, store *session.Store, finalizer Finalizer) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		finalizer: finalizer,
	}
}

func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Session.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx, time.Now())
		}
	}
}

// Sweep runs one scan cycle. Eligibility is evaluated under each session's
// lock with minimal scope, finalization happens outside any registry lock,
// one session at a time. A session whose finalization blows up is evicted so
// it cannot wedge every later sweep.
func (s *Service) Sweep(ctx context.Context, now time.Time) (finalized, evicted int) {
	idleThreshold := s.cfg.Session.IdleThreshold()
	grace := s.cfg.Session.EvictGrace()

	var candidates, expired []string

	for _, id := range s.store.SnapshotIDs() {
		s.store.WithLock(id, func(sess *session.Session) {
			switch {
			case sess.NeedsFinalize(now, idleThreshold):
				candidates = append(candidates, id)
			case sess.Evictable(now, idleThreshold, grace):
				expired = append(expired, id)
			}
		})
	}

	for _, id := range candidates {
		if s.finalizeOne(ctx, id) {
			finalized++
		} else {
			s.store.Delete(id)
			evicted++
		}
	}

	for _, id := range expired {
		s.store.Delete(id)
	}
	evicted += len(expired)

	if finalized > 0 || evicted > 0 {
		slog.Info("Sweep cycle finished",
			"finalized", finalized,
			"evicted", evicted,
			"live", s.store.Len())
	}

	return finalized, evicted
}

func (s *Service) finalizeOne(ctx context.Context, id string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Finalization panicked, evicting session",
				"conversation_id", id,
				"reason", r,
				"telegram", true)
			ok = false
		}
	}()

	s.finalizer.Finalize(ctx, id)

	return true
}
