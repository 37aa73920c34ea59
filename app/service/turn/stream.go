package turn

import (
	"avachat/app/util/text"
	"context"
	"log/slog"
	"strings"
	"unicode"
)

// Fragment is one element of the streaming response: a metadata fragment
// first, one per completed sentence, then a final fragment carrying the full
// reply and the final variable map.
type Fragment struct {
	Type      string          `json:"type"`
	Sentence  string          `json:"sentence,omitempty"`
	Reply     string          `json:"reply,omitempty"`
	Slots     map[string]any  `json:"slots,omitempty"`
	Variables map[string]bool `json:"variables,omitempty"`
	Qualified *bool           `json:"qualified,omitempty"`
	Fallback  bool            `json:"fallback,omitempty"`
	KBPending string          `json:"kb_pending,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	Done      bool            `json:"done,omitempty"`
}

const (
	FragmentMeta     = "meta"
	FragmentSentence = "sentence"
	FragmentFinal    = "final"
)

// StreamTurn is the streaming variant of ProcessTurn: dialogue output is
// forwarded sentence-by-sentence while the full text is buffered for the
// final fallback/trigger computation.
func (s *Service) StreamTurn(ctx context.Context, req Request, emit func(Fragment) error) error {
	var err error

	s.store.WithTurnLock(req.ConversationID, func() {
		err = s.streamTurn(ctx, req, emit)
	})

	return err
}

func (s *Service) streamTurn(ctx context.Context, req Request, emit func(Fragment) error) error {
	pre := s.preTurn(ctx, req)

	if err := emit(Fragment{
		Type:      FragmentMeta,
		Slots:     pre.slots,
		Variables: s.triggers.VariableMap(""),
		Qualified: pre.qualified,
	}); err != nil {
		return err
	}

	if pre.done {
		result := s.finishTerminal(ctx, req, pre)
		return emit(finalFragment(result))
	}

	var (
		assembler sentenceAssembler
		full      strings.Builder
	)

	streamErr := s.responder.StreamReply(ctx, req.UserMessage, pre.slots, req.FAQQuery, func(chunk string) error {
		full.WriteString(chunk)

		for _, sentence := range assembler.feed(chunk) {
			if err := emit(Fragment{Type: FragmentSentence, Sentence: sentence}); err != nil {
				return err
			}
		}

		return nil
	})
	if streamErr != nil {
		slog.Warn("Dialogue stream degraded",
			"conversation_id", req.ConversationID,
			"error", streamErr)

		if full.Len() == 0 {
			// nothing reached the caller, report an empty turn
			return emit(Fragment{
				Type:      FragmentFinal,
				Slots:     pre.slots,
				Variables: s.triggers.VariableMap(""),
				Qualified: pre.qualified,
			})
		}
	}

	for _, sentence := range assembler.flush() {
		if err := emit(Fragment{Type: FragmentSentence, Sentence: sentence}); err != nil {
			return err
		}
	}

	result := s.finishReply(req, pre, strings.TrimSpace(full.String()))

	return emit(finalFragment(result))
}

func finalFragment(result *Result) Fragment {
	return Fragment{
		Type:      FragmentFinal,
		Reply:     result.Reply,
		Slots:     result.Slots,
		Variables: result.Variables,
		Qualified: result.Qualified,
		Fallback:  result.Fallback,
		KBPending: result.KBPending,
		Summary:   result.Summary,
		Done:      result.Done,
	}
}

// sentenceAssembler accumulates token chunks and releases completed
// sentences. The trailing segment is held back until more input arrives or
// flush is called: it may still grow.
type sentenceAssembler struct {
	pending string
}

func (a *sentenceAssembler) feed(chunk string) []string {
	a.pending += chunk

	sentences := text.Sentences(a.pending)
	if len(sentences) == 0 {
		return nil
	}

	if endsComplete(a.pending) {
		a.pending = ""
		return sentences
	}

	a.pending = sentences[len(sentences)-1]

	return sentences[:len(sentences)-1]
}

func (a *sentenceAssembler) flush() []string {
	sentences := text.Sentences(a.pending)
	a.pending = ""

	return sentences
}

func endsComplete(s string) bool {
	trimmed := strings.TrimRight(s, " \n")
	if trimmed == "" {
		return false
	}

	runes := []rune(trimmed)
	switch runes[len(runes)-1] {
	case '!', '?', ']':
		return true
	case '.':
		// a trailing "2." may be a decimal cut at the chunk boundary, hold
		// it back until the next chunk settles it
		return len(runes) < 2 || !unicode.IsDigit(runes[len(runes)-2])
	default:
		return false
	}
}
