package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

type Decision string

const (
	DecisionYes     Decision = "yes"
	DecisionNo      Decision = "no"
	DecisionUnknown Decision = "unknown"
)

// TurnRecord is one exchange. Agent stays empty until the reply is computed,
// HasAgent marks the record as closed so a reply is attached at most once.
type TurnRecord struct {
	User     string
	Agent    string
	HasAgent bool
}

type FinalSummary struct {
	IntentSummary string
	BookTour      Decision
	Qualified     Decision
	Incentives    []string
	GeneratedAt   time.Time
}

// Session holds all per-conversation state. Every field access must happen
// inside Store.WithLock for that conversation id.
type Session struct {
	mu sync.Mutex

	// turnMu serializes whole turns for this conversation, external calls
	// included. It is never taken while mu is held.
	turnMu sync.Mutex

	ID      string
	Slots   map[string]any
	History []TurnRecord

	PQCompleted       bool
	FallbackTriggered bool
	KBPending         string

	LastActivity       time.Time
	SummaryGenerated   bool
	SummaryGeneratedAt time.Time
	FinalSummary       *FinalSummary
}

func newSession(id string) *Session {
	return &Session{
		ID:           id,
		Slots:        make(map[string]any),
		LastActivity: time.Now(),
	}
}

// Touch records activity. A summary older than the new activity is stale, the
// session becomes eligible for re-finalization on the next idle period.
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now

	if s.SummaryGenerated && s.SummaryGeneratedAt.Before(now) {
		s.SummaryGenerated = false
	}
}

// MergeSlots overwrites existing keys only with non-nil values, so repeating
// an unchanged extractor result is a no-op.
func (s *Session) MergeSlots(updates map[string]any) {
	for key, value := range updates {
		if value == nil {
			if _, exists := s.Slots[key]; !exists {
				s.Slots[key] = nil
			}
			continue
		}

		s.Slots[key] = value
	}

	if done, ok := s.Slots["pq_completed"].(bool); ok && done {
		s.PQCompleted = true
	}
}

func (s *Session) SnapshotSlots() map[string]any {
	return lo.Assign(map[string]any{}, s.Slots)
}

func (s *Session) AppendTurn(userMessage string) {
	s.History = append(s.History, TurnRecord{User: userMessage})
}

// AttachReply closes the most recent open turn. Returns false if there is no
// open turn, a second reply for the same turn is never recorded.
func (s *Session) AttachReply(reply string) bool {
	if len(s.History) == 0 {
		return false
	}

	last := &s.History[len(s.History)-1]
	if last.HasAgent {
		return false
	}

	last.Agent = reply
	last.HasAgent = true

	return true
}

// NeedsFinalize is the idle-episode guard: idle long enough, and not already
// summarized since the last activity.
func (s *Session) NeedsFinalize(now time.Time, idleThreshold time.Duration) bool {
	if now.Sub(s.LastActivity) <= idleThreshold {
		return false
	}

	return !s.SummaryGenerated || s.LastActivity.After(s.SummaryGeneratedAt)
}

// Evictable reports whether a finalized session has outlived its grace window
// for late-arriving turns.
func (s *Session) Evictable(now time.Time, idleThreshold, grace time.Duration) bool {
	if !s.SummaryGenerated {
		return false
	}

	return now.Sub(s.LastActivity) > idleThreshold+grace
}

func (s *Session) MarkFinalized(summary *FinalSummary, now time.Time) {
	s.FinalSummary = summary
	s.SummaryGenerated = true
	s.SummaryGeneratedAt = now
}

// Transcript renders history for summary prompts.
func (s *Session) Transcript() string {
	if len(s.History) == 0 {
		return "No messages yet"
	}

	var builder strings.Builder

	for _, turn := range s.History {
		builder.WriteString(fmt.Sprintf("Visitor: %s\n", turn.User))
		if turn.HasAgent {
			builder.WriteString(fmt.Sprintf("Ava: %s\n", turn.Agent))
		}
	}

	return builder.String()
}
