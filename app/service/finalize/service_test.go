package finalize

import (
	"avachat/app/service/session"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSummarizer struct {
	summary    string
	summaryErr error
	extraction *Extraction
	extractErr error
}

func (f *fakeSummarizer) IntentSummary(_ context.Context, _ string) (string, error) {
	if f.summaryErr != nil {
		return "", f.summaryErr
	}

	return f.summary, nil
}

func (f *fakeSummarizer) Extract(_ context.Context, _ string) (*Extraction, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}

	return f.extraction, nil
}

type persistCall struct {
	conversationID  string
	intentSummary   string
	qualified       bool
	status          string
	pendingQuestion string
}

type fakePersister struct {
	calls []persistCall
	err   error
}

func (f *fakePersister) Persist(_ context.Context, conversationID, intentSummary string, qualified bool, status, pendingQuestion string) error {
	f.calls = append(f.calls, persistCall{
		conversationID:  conversationID,
		intentSummary:   intentSummary,
		qualified:       qualified,
		status:          status,
		pendingQuestion: pendingQuestion,
	})

	return f.err
}

type fakeEmitter struct {
	events []string
}

func (f *fakeEmitter) Emit(eventType, _ string, _ map[string]any) {
	f.events = append(f.events, eventType)
}

func seedSession(store *session.Store, id string) {
	store.WithLock(id, func(sess *session.Session) {
		sess.AppendTurn("Hi, I need a 2BR")
		sess.AttachReply("And what is your move-in date?")
		sess.MergeSlots(map[string]any{"pq_completed": true})
	})
}

func TestFinalizeHappyPath(t *testing.T) {
	store := session.NewStore()
	seedSession(store, "c1")

	summarizer := &fakeSummarizer{
		summary: "Visitor wants a 2BR and booked a tour.",
		extraction: &Extraction{
			BookTour:   session.DecisionYes,
			Qualified:  session.DecisionYes,
			Incentives: []string{"$25"},
		},
	}
	persister := &fakePersister{}
	emitter := &fakeEmitter{}

	svc := NewService(store, summarizer, persister, emitter)
	summary := svc.Finalize(context.Background(), "c1")

	require.NotNil(t, summary)
	assert.Equal(t, "Visitor wants a 2BR and booked a tour.", summary.IntentSummary)
	assert.Equal(t, session.DecisionYes, summary.BookTour)
	assert.Equal(t, []string{"$25"}, summary.Incentives)
	assert.False(t, summary.GeneratedAt.IsZero())

	require.Len(t, persister.calls, 1)
	call := persister.calls[0]
	assert.Equal(t, "c1", call.conversationID)
	assert.True(t, call.qualified)
	assert.Equal(t, "completed", call.status)
	assert.Empty(t, call.pendingQuestion)

	assert.Equal(t, []string{"conversation_finalized"}, emitter.events)

	store.WithLock("c1", func(sess *session.Session) {
		assert.True(t, sess.SummaryGenerated)
		assert.Equal(t, summary, sess.FinalSummary)
	})
}

func TestFinalizeDegradesOnSummarizerFailure(t *testing.T) {
	store := session.NewStore()
	seedSession(store, "c1")

	summarizer := &fakeSummarizer{
		summaryErr: fmt.Errorf("model unavailable"),
		extractErr: fmt.Errorf("model unavailable"),
	}
	persister := &fakePersister{}

	svc := NewService(store, summarizer, persister, &fakeEmitter{})
	summary := svc.Finalize(context.Background(), "c1")

	require.NotNil(t, summary)
	assert.Empty(t, summary.IntentSummary)
	assert.Equal(t, session.DecisionUnknown, summary.BookTour)
	assert.Equal(t, session.DecisionUnknown, summary.Qualified)

	// the session is still sealed and the record still persisted
	require.Len(t, persister.calls, 1)
	store.WithLock("c1", func(sess *session.Session) {
		assert.True(t, sess.SummaryGenerated)
	})
}

func TestFinalizeCarriesPendingQuestion(t *testing.T) {
	store := session.NewStore()
	seedSession(store, "c1")
	store.WithLock("c1", func(sess *session.Session) {
		sess.FallbackTriggered = true
		sess.KBPending = "Do you allow llamas?"
	})

	persister := &fakePersister{}
	svc := NewService(store, &fakeSummarizer{extraction: &Extraction{
		BookTour:  session.DecisionNo,
		Qualified: session.DecisionUnknown,
	}}, persister, &fakeEmitter{})

	svc.Finalize(context.Background(), "c1")

	require.Len(t, persister.calls, 1)
	assert.Equal(t, "Do you allow llamas?", persister.calls[0].pendingQuestion)
}

func TestFinalizePersistFailureStillSealsSession(t *testing.T) {
	store := session.NewStore()
	seedSession(store, "c1")

	persister := &fakePersister{err: fmt.Errorf("connection refused")}
	svc := NewService(store, &fakeSummarizer{extraction: &Extraction{
		BookTour:  session.DecisionUnknown,
		Qualified: session.DecisionUnknown,
	}}, persister, &fakeEmitter{})

	summary := svc.Finalize(context.Background(), "c1")

	require.NotNil(t, summary)
	store.WithLock("c1", func(sess *session.Session) {
		assert.True(t, sess.SummaryGenerated)
		assert.False(t, sess.SummaryGeneratedAt.After(time.Now()))
	})
}
