package finalize

import (
	"avachat/app/client/llm"
	"avachat/app/config"
	"avachat/app/service/session"
	"avachat/app/util/text"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "embed"

	"github.com/sashabaranov/go-openai"
)

//go:embed summary_prompt.txt
var summaryPromptTemplate string

//go:embed structured_prompt.txt
var structuredPromptTemplate string

const (
	maxReasonDuration   = 30 * time.Second
	maxSummarySentences = 5
)

type Extraction struct {
	BookTour   session.Decision `json:"book_tour"`
	Qualified  session.Decision `json:"qualified"`
	Incentives []string         `json:"incentives_accepted"`
}

// Agent produces the terminal summary content: a bounded free-text intent
// summary and a structured extraction over the transcript.
type Agent struct {
	client *openai.Client
	model  string
}

func NewAgent(cfg config.ModelConfig) *Agent {
	return &Agent{
		client: llm.NewClient(cfg),
		model:  cfg.Model,
	}
}

func (a *Agent) IntentSummary(ctx context.Context, transcript string) (string, error) {
	prompt := strings.ReplaceAll(summaryPromptTemplate, "{transcript}", transcript)

	content, err := a.complete(ctx, prompt, nil)
	if err != nil {
		return "", err
	}

	return text.Truncate(content, maxSummarySentences), nil
}

func (a *Agent) Extract(ctx context.Context, transcript string) (*Extraction, error) {
	prompt := strings.ReplaceAll(structuredPromptTemplate, "{transcript}", transcript)

	content, err := a.complete(ctx, prompt, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	})
	if err != nil {
		return nil, err
	}

	content = strings.Trim(content, "`")
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "json")
	content = strings.TrimSpace(content)

	var extraction Extraction
	if err = json.Unmarshal([]byte(content), &extraction); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extraction: %w", err)
	}

	if !validDecision(extraction.BookTour) {
		extraction.BookTour = session.DecisionUnknown
	}
	if !validDecision(extraction.Qualified) {
		extraction.Qualified = session.DecisionUnknown
	}

	return &extraction, nil
}

func (a *Agent) complete(ctx context.Context, prompt string, format *openai.ChatCompletionResponseFormat) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, maxReasonDuration)
	defer cancel()

	aiResponse, err := a.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: a.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxCompletionTokens: 1000,
			ResponseFormat:      format,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(aiResponse.Choices) == 0 {
		return "", fmt.Errorf("no chat completion found")
	}

	return strings.TrimSpace(aiResponse.Choices[0].Message.Content), nil
}

func validDecision(d session.Decision) bool {
	return d == session.DecisionYes || d == session.DecisionNo || d == session.DecisionUnknown
}
