package turn

import (
	"avachat/app/client/analytics"
	"avachat/app/config"
	"avachat/app/service/dialogue"
	"avachat/app/service/extract"
	"avachat/app/service/finalize"
	"avachat/app/service/session"
	"context"
	"log/slog"
	"time"

	"github.com/samber/do"
	"github.com/samber/lo"
)

type SlotExtractor interface {
	Extract(ctx context.Context, req extract.Request) (*extract.Result, error)
}

type Responder interface {
	Reply(ctx context.Context, userMessage string, knownSlots map[string]any, faqQuery bool) (string, error)
	StreamReply(ctx context.Context, userMessage string, knownSlots map[string]any, faqQuery bool, emit func(chunk string) error) error
}

type Finalizer interface {
	Finalize(ctx context.Context, conversationID string) *session.FinalSummary
}

type Emitter interface {
	Emit(eventType, conversationID string, props map[string]any)
}

type Request struct {
	ConversationID string `json:"conversation_id"`
	TurnID         int    `json:"turn_id"`
	UserMessage    string `json:"user_message"`
	EndSignal      bool   `json:"end_signal"`
	// FAQQuery is the upstream FAQ-classification decision, made by the
	// caller, not by this engine.
	FAQQuery bool `json:"faq_query"`
}

type Result struct {
	Reply     string          `json:"reply"`
	Slots     map[string]any  `json:"slots"`
	Variables map[string]bool `json:"variables"`
	Qualified *bool           `json:"qualified,omitempty"`
	Fallback  bool            `json:"fallback"`
	KBPending string          `json:"kb_pending,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	Done      bool            `json:"done"`
}

// Service sequences one request turn: slot extraction, dialogue generation,
// fallback detection, trigger-variable computation. Turns for the same
// conversation serialize on the session's turn lock for the whole pipeline;
// the data lock is still taken only in short sections, so the sweeper never
// waits on an LLM call.
type Service struct {
	cfg       *config.Config
	store     *session.Store
	extractor SlotExtractor
	responder Responder
	fallback  *dialogue.FallbackClassifier
	triggers  *dialogue.TriggerResolver
	finalizer Finalizer
	analytics Emitter
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		cfg,
		do.MustInvoke[*session.Store](di),
		do.MustInvoke[*extract.Agent](di),
		do.MustInvoke[*dialogue.Agent](di),
		do.MustInvoke[*finalize.Service](di),
		do.MustInvoke[*analytics.Client](di),
	), nil
}

func NewService(cfg *config.Config, store *session.Store, extractor SlotExtractor, responder Responder, finalizer Finalizer, emitter Emitter) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		responder: responder,
		fallback:  dialogue.NewFallbackClassifier(cfg.Fallback),
		triggers:  dialogue.NewTriggerResolver(cfg.Triggers),
		finalizer: finalizer,
		analytics: emitter,
	}
}

// ProcessTurn runs the full pipeline for a non-streaming turn. It never
// surfaces an internal error: any external failure degrades to "no new
// information this turn".
func (s *Service) ProcessTurn(ctx context.Context, req Request) *Result {
	var result *Result

	s.store.WithTurnLock(req.ConversationID, func() {
		result = s.processTurn(ctx, req)
	})

	return result
}

func (s *Service) processTurn(ctx context.Context, req Request) *Result {
	pre := s.preTurn(ctx, req)

	if pre.done {
		return s.finishTerminal(ctx, req, pre)
	}

	reply, err := s.responder.Reply(ctx, req.UserMessage, pre.slots, req.FAQQuery)
	if err != nil {
		slog.Warn("Dialogue responder failed, degrading turn",
			"conversation_id", req.ConversationID,
			"error", err)

		return &Result{
			Slots:     pre.slots,
			Variables: s.triggers.VariableMap(""),
			Qualified: pre.qualified,
		}
	}

	return s.finishReply(req, pre, reply)
}

type preTurnState struct {
	slots     map[string]any
	qualified *bool
	done      bool
}

// preTurn covers steps shared by both variants: activity touch, extraction,
// merge, history append, completion check.
func (s *Service) preTurn(ctx context.Context, req Request) *preTurnState {
	var currentSlots map[string]any

	s.store.WithLock(req.ConversationID, func(sess *session.Session) {
		sess.Touch(time.Now())
		currentSlots = sess.SnapshotSlots()
	})

	extracted, err := s.extractor.Extract(ctx, extract.Request{
		ConversationID: req.ConversationID,
		TurnID:         req.TurnID,
		UserMessage:    req.UserMessage,
		EndSignal:      req.EndSignal,
		CurrentSlots:   currentSlots,
	})
	if err != nil {
		// malformed or failed extraction keeps the prior known-good slots
		slog.Warn("Slot extraction degraded to no-op",
			"conversation_id", req.ConversationID,
			"error", err)
		extracted = &extract.Result{Slots: map[string]any{}}
	}

	state := &preTurnState{
		done: extracted.Done || req.EndSignal,
	}

	s.store.WithLock(req.ConversationID, func(sess *session.Session) {
		sess.MergeSlots(extracted.Slots)
		sess.AppendTurn(req.UserMessage)

		state.slots = sess.SnapshotSlots()
		if done, ok := sess.Slots["pq_completed"].(bool); ok {
			state.qualified = lo.ToPtr(done)
		}
	})

	return state
}

// finishTerminal short-circuits a completed conversation: no dialogue call,
// all variables inactive, immediate finalization with the summary carried in
// the result.
func (s *Service) finishTerminal(ctx context.Context, req Request, pre *preTurnState) *Result {
	summary := s.finalizer.Finalize(ctx, req.ConversationID)

	return &Result{
		Slots:     pre.slots,
		Variables: s.triggers.VariableMap(""),
		Qualified: pre.qualified,
		Summary:   summary.IntentSummary,
		Done:      true,
	}
}

// finishReply runs fallback classification, trigger resolution and the final
// session mutation for a produced reply.
func (s *Service) finishReply(req Request, pre *preTurnState, reply string) *Result {
	result := &Result{
		Reply:     reply,
		Slots:     pre.slots,
		Qualified: pre.qualified,
	}

	if s.fallback.IsFallback(reply, nil) {
		result.Reply = s.cfg.Fallback.HandoffMessage
		result.Fallback = true
		result.KBPending = req.UserMessage

		s.analytics.Emit("chatbot_fallback", req.ConversationID, map[string]any{
			"question": req.UserMessage,
		})
	}

	active, _ := s.triggers.Resolve(result.Reply)
	result.Variables = s.triggers.VariableMap(active)

	s.store.WithLock(req.ConversationID, func(sess *session.Session) {
		if result.Fallback {
			sess.FallbackTriggered = true
			sess.KBPending = req.UserMessage
		}

		sess.AttachReply(result.Reply)
	})

	return result
}
