package sweeper

import (
	"avachat/app/config"
	"avachat/app/service/session"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinalizer struct {
	store   *session.Store
	calls   []string
	explode bool
}

func (f *fakeFinalizer) Finalize(_ context.Context, conversationID string) *session.FinalSummary {
	f.calls = append(f.calls, conversationID)

	if f.explode {
		panic("summarizer blew up")
	}

	summary := &session.FinalSummary{GeneratedAt: time.Now()}
	f.store.WithLock(conversationID, func(sess *session.Session) {
		sess.MarkFinalized(summary, summary.GeneratedAt)
	})

	return summary
}

type sweepFixture struct {
	svc       *Service
	store     *session.Store
	finalizer *fakeFinalizer
	cfg       *config.Config
}

func newFixture() *sweepFixture {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	store := session.NewStore()
	finalizer := &fakeFinalizer{store: store}

	return &sweepFixture{
		svc:       NewService(cfg, store, finalizer),
		store:     store,
		finalizer: finalizer,
		cfg:       cfg,
	}
}

func (fx *sweepFixture) seedIdle(id string, idleFor time.Duration, now time.Time) {
	fx.store.WithLock(id, func(sess *session.Session) {
		sess.AppendTurn("hello")
		sess.LastActivity = now.Add(-idleFor)
	})
}

func TestSweepFinalizesIdleSession(t *testing.T) {
	fx := newFixture()
	now := time.Now()
	fx.seedIdle("c1", 121*time.Second, now)

	finalized, evicted := fx.svc.Sweep(context.Background(), now)

	assert.Equal(t, 1, finalized)
	assert.Zero(t, evicted)
	assert.Equal(t, []string{"c1"}, fx.finalizer.calls)
}

func TestSweepSkipsActiveSession(t *testing.T) {
	fx := newFixture()
	now := time.Now()
	fx.seedIdle("c1", 30*time.Second, now)

	finalized, _ := fx.svc.Sweep(context.Background(), now)

	assert.Zero(t, finalized)
	assert.Empty(t, fx.finalizer.calls)
}

func TestSweepFinalizesAtMostOncePerIdleEpisode(t *testing.T) {
	fx := newFixture()
	now := time.Now()
	fx.seedIdle("c1", 121*time.Second, now)

	fx.svc.Sweep(context.Background(), now)
	fx.svc.Sweep(context.Background(), now.Add(time.Second))
	fx.svc.Sweep(context.Background(), now.Add(2*time.Second))

	assert.Equal(t, []string{"c1"}, fx.finalizer.calls)
}

func TestSweepRefinalizesAfterResumedActivity(t *testing.T) {
	fx := newFixture()
	now := time.Now()
	fx.seedIdle("c1", 121*time.Second, now)

	fx.svc.Sweep(context.Background(), now)
	require.Len(t, fx.finalizer.calls, 1)

	// visitor comes back, goes idle again
	resumed := now.Add(10 * time.Second)
	fx.store.WithLock("c1", func(sess *session.Session) {
		sess.Touch(resumed)
		sess.AppendTurn("one more question")
	})

	secondIdle := resumed.Add(fx.cfg.Session.IdleThreshold() + time.Second)
	fx.svc.Sweep(context.Background(), secondIdle)

	assert.Equal(t, []string{"c1", "c1"}, fx.finalizer.calls)
}

func TestSweepEvictsAfterGraceWindow(t *testing.T) {
	fx := newFixture()
	now := time.Now()
	fx.seedIdle("c1", 121*time.Second, now)

	fx.svc.Sweep(context.Background(), now)
	assert.Equal(t, 1, fx.store.Len())

	pastGrace := now.Add(fx.cfg.Session.IdleThreshold() + fx.cfg.Session.EvictGrace() + time.Second)
	finalized, evicted := fx.svc.Sweep(context.Background(), pastGrace)

	assert.Zero(t, finalized)
	assert.Equal(t, 1, evicted)
	assert.Zero(t, fx.store.Len())
}

func TestSweepEvictsOnFinalizerPanic(t *testing.T) {
	fx := newFixture()
	fx.finalizer.explode = true

	now := time.Now()
	fx.seedIdle("c1", 121*time.Second, now)
	fx.seedIdle("c2", 121*time.Second, now)

	finalized, evicted := fx.svc.Sweep(context.Background(), now)

	assert.Zero(t, finalized)
	assert.Equal(t, 2, evicted)
	assert.Zero(t, fx.store.Len())
	assert.Len(t, fx.finalizer.calls, 2)
}
