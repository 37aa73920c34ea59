package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateIsLazy(t *testing.T) {
	store := NewStore()

	sess := store.GetOrCreate("c1")
	require.NotNil(t, sess)
	assert.Equal(t, "c1", sess.ID)
	assert.Empty(t, sess.History)

	again := store.GetOrCreate("c1")
	assert.Same(t, sess, again)
	assert.Equal(t, 1, store.Len())
}

func TestWithLockSerializesSameConversation(t *testing.T) {
	store := NewStore()

	const workers = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.WithLock("c1", func(sess *Session) {
				sess.AppendTurn("hello")
			})
		}()
	}
	wg.Wait()

	store.WithLock("c1", func(sess *Session) {
		assert.Len(t, sess.History, workers)
	})
}

func TestWithTurnLockNestsDataLock(t *testing.T) {
	store := NewStore()

	store.WithTurnLock("c1", func() {
		store.WithLock("c1", func(sess *Session) {
			sess.AppendTurn("hi")
		})
		store.WithLock("c1", func(sess *Session) {
			require.True(t, sess.AttachReply("hello"))
		})
	})

	store.WithLock("c1", func(sess *Session) {
		assert.Len(t, sess.History, 1)
	})
}

func TestWithTurnLockSerializes(t *testing.T) {
	store := NewStore()

	const workers = 20

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.WithTurnLock("c1", func() {
				store.WithLock("c1", func(sess *Session) {
					sess.AppendTurn("hello")
				})
				store.WithLock("c1", func(sess *Session) {
					sess.AttachReply("world")
				})
			})
		}()
	}
	wg.Wait()

	store.WithLock("c1", func(sess *Session) {
		require.Len(t, sess.History, workers)
		for _, record := range sess.History {
			assert.True(t, record.HasAgent)
		}
	})
}

func TestDeleteAndSnapshot(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("a")
	store.GetOrCreate("b")

	assert.ElementsMatch(t, []string{"a", "b"}, store.SnapshotIDs())

	store.Delete("a")
	assert.ElementsMatch(t, []string{"b"}, store.SnapshotIDs())
}

func TestMergeSlotsIdempotent(t *testing.T) {
	sess := newSession("c1")

	updates := map[string]any{"desired_bedrooms": float64(2), "prospect_name": "Sam"}
	sess.MergeSlots(updates)
	first := sess.SnapshotSlots()

	sess.MergeSlots(updates)
	assert.Equal(t, first, sess.SnapshotSlots())
}

func TestMergeSlotsNilDoesNotOverwrite(t *testing.T) {
	sess := newSession("c1")

	sess.MergeSlots(map[string]any{"prospect_name": "Sam"})
	sess.MergeSlots(map[string]any{"prospect_name": nil, "employer": nil})

	assert.Equal(t, "Sam", sess.Slots["prospect_name"])

	// unknown/nil keys are tolerated but never clobber known values
	value, ok := sess.Slots["employer"]
	assert.True(t, ok)
	assert.Nil(t, value)
}

func TestMergeSlotsSetsPQCompleted(t *testing.T) {
	sess := newSession("c1")

	sess.MergeSlots(map[string]any{"pq_completed": true})
	assert.True(t, sess.PQCompleted)
}

func TestAttachReplyAtMostOnce(t *testing.T) {
	sess := newSession("c1")

	assert.False(t, sess.AttachReply("orphan reply"))

	sess.AppendTurn("hi")
	require.True(t, sess.AttachReply("hello"))
	assert.False(t, sess.AttachReply("second reply"))

	assert.Equal(t, "hello", sess.History[0].Agent)
}

func TestTouchInvalidatesStaleSummary(t *testing.T) {
	sess := newSession("c1")

	base := time.Now()
	sess.MarkFinalized(&FinalSummary{IntentSummary: "done"}, base)
	require.True(t, sess.SummaryGenerated)

	sess.Touch(base.Add(time.Second))
	assert.False(t, sess.SummaryGenerated)
	assert.NotNil(t, sess.FinalSummary)
}

func TestNeedsFinalizeGuard(t *testing.T) {
	sess := newSession("c1")
	threshold := 120 * time.Second

	base := time.Now()
	sess.LastActivity = base

	assert.False(t, sess.NeedsFinalize(base.Add(threshold), threshold))
	assert.True(t, sess.NeedsFinalize(base.Add(threshold+time.Second), threshold))

	sess.MarkFinalized(&FinalSummary{}, base.Add(threshold+time.Second))
	assert.False(t, sess.NeedsFinalize(base.Add(threshold+2*time.Second), threshold))

	// resumed activity re-arms finalization for the next idle period
	resumed := base.Add(threshold + 3*time.Second)
	sess.Touch(resumed)
	assert.False(t, sess.SummaryGenerated)
	assert.True(t, sess.NeedsFinalize(resumed.Add(threshold+time.Second), threshold))
}

func TestEvictableOnlyAfterGrace(t *testing.T) {
	sess := newSession("c1")
	threshold := 120 * time.Second
	grace := 600 * time.Second

	base := time.Now()
	sess.LastActivity = base

	assert.False(t, sess.Evictable(base.Add(threshold+grace+time.Second), threshold, grace))

	sess.MarkFinalized(&FinalSummary{}, base)
	assert.False(t, sess.Evictable(base.Add(threshold+grace), threshold, grace))
	assert.True(t, sess.Evictable(base.Add(threshold+grace+time.Second), threshold, grace))
}

func TestTranscript(t *testing.T) {
	sess := newSession("c1")
	assert.Equal(t, "No messages yet", sess.Transcript())

	sess.AppendTurn("Hi, I need a 2BR")
	sess.AttachReply("Great! What's your move-in date?")
	sess.AppendTurn("August")

	transcript := sess.Transcript()
	assert.Contains(t, transcript, "Visitor: Hi, I need a 2BR")
	assert.Contains(t, transcript, "Ava: Great! What's your move-in date?")
	assert.Contains(t, transcript, "Visitor: August")
}
