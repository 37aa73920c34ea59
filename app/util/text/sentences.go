package text

import "strings"

// Sentences splits a reply on terminal punctuation. Button blocks like
// "[1 BR|2 BR|3 BR]" stay glued to the sentence before them, a splitter that
// cuts inside them would garble the chat UI.
func Sentences(s string) []string {
	var (
		result    []string
		builder   strings.Builder
		inBracket bool
	)

	flush := func() {
		sentence := strings.TrimSpace(builder.String())
		if sentence != "" {
			result = append(result, sentence)
		}
		builder.Reset()
	}

	runes := []rune(s)
	for i, r := range runes {
		builder.WriteRune(r)

		switch r {
		case '[':
			inBracket = true
		case ']':
			inBracket = false
		case '.', '!', '?':
			if inBracket {
				continue
			}
			// don't split decimals like 2.5 or ellipsis mid-way
			if r == '.' && i+1 < len(runes) && runes[i+1] != ' ' && runes[i+1] != '\n' {
				continue
			}
			flush()
		case '\n':
			flush()
		}
	}

	flush()

	return result
}

// Truncate keeps at most limit sentences.
func Truncate(s string, limit int) string {
	sentences := Sentences(s)
	if len(sentences) <= limit {
		return strings.TrimSpace(s)
	}

	return strings.Join(sentences[:limit], " ")
}
