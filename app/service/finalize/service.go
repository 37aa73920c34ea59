package finalize

import (
	"avachat/app/client/analytics"
	"avachat/app/client/leadstore"
	"avachat/app/config"
	"avachat/app/service/session"
	"context"
	"log/slog"
	"time"

	"github.com/samber/do"
)

// Summarizer is the external text-generation capability behind finalization.
type Summarizer interface {
	IntentSummary(ctx context.Context, transcript string) (string, error)
	Extract(ctx context.Context, transcript string) (*Extraction, error)
}

// Persister receives the terminal record, once per finalize invocation.
type Persister interface {
	Persist(ctx context.Context, conversationID, intentSummary string, qualified bool, status, pendingQuestion string) error
}

type Emitter interface {
	Emit(eventType, conversationID string, props map[string]any)
}

// Service seals a conversation: summary, structured extraction, session
// mutation, one persistence call. It is not idempotent on its own, callers
// hold the "not already summarized since last activity" guard.
type Service struct {
	store     *session.Store
	agent     Summarizer
	leads     Persister
	analytics Emitter
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		do.MustInvoke[*session.Store](di),
		NewAgent(cfg.OpenAI.Summary),
		do.MustInvoke[*leadstore.Store](di),
		do.MustInvoke[*analytics.Client](di),
	), nil
}

func NewService(store *session.Store, agent Summarizer, leads Persister, emitter Emitter) *Service {
	return &Service{
		store:     store,
		agent:     agent,
		leads:     leads,
		analytics: emitter,
	}
}

// Finalize drives one session through summary generation and persistence. It
// always produces a FinalSummary: a failed or unparsable structured call
// degrades to unknown decisions, a failed summary call to an empty summary.
// Only the persistence step can return an error worth surfacing, and even
// that never blocks the session mutation.
func (s *Service) Finalize(ctx context.Context, conversationID string) *session.FinalSummary {
	var (
		transcript string
		qualified  bool
		kbPending  string
	)

	s.store.WithLock(conversationID, func(sess *session.Session) {
		transcript = sess.Transcript()
		qualified = sess.PQCompleted
		kbPending = sess.KBPending
	})

	// LLM calls happen without holding any lock.
	intentSummary, err := s.agent.IntentSummary(ctx, transcript)
	if err != nil {
		slog.Error("Intent summary generation failed",
			"conversation_id", conversationID,
			"error", err)
		intentSummary = ""
	}

	extraction, err := s.agent.Extract(ctx, transcript)
	if err != nil {
		slog.Warn("Structured extraction failed, substituting unknowns",
			"conversation_id", conversationID,
			"error", err)
		extraction = &Extraction{
			BookTour:  session.DecisionUnknown,
			Qualified: session.DecisionUnknown,
		}
	}

	now := time.Now()
	summary := &session.FinalSummary{
		IntentSummary: intentSummary,
		BookTour:      extraction.BookTour,
		Qualified:     extraction.Qualified,
		Incentives:    extraction.Incentives,
		GeneratedAt:   now,
	}

	s.store.WithLock(conversationID, func(sess *session.Session) {
		sess.MarkFinalized(summary, now)
	})

	if err = s.leads.Persist(ctx, conversationID, intentSummary, qualified, "completed", kbPending); err != nil {
		slog.Error("Lead persistence failed",
			"conversation_id", conversationID,
			"error", err,
			"telegram", true)
	}

	s.analytics.Emit("conversation_finalized", conversationID, map[string]any{
		"qualified": qualified,
		"book_tour": string(summary.BookTour),
	})

	return summary
}
