package extract

import (
	"avachat/app/client/llm"
	"avachat/app/config"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "embed"

	"github.com/samber/do"
	"github.com/samber/lo"
	"github.com/sashabaranov/go-openai"
)

//go:embed extract_prompt.txt
var extractPromptTemplate string

const maxReasonDuration = 30 * time.Second

type Request struct {
	ConversationID string         `json:"conversation_id"`
	TurnID         int            `json:"turn_id"`
	UserMessage    string         `json:"user_message"`
	EndSignal      bool           `json:"end_signal"`
	CurrentSlots   map[string]any `json:"current_data"`
}

type Result struct {
	Slots map[string]any
	Done  bool
}

type Agent struct {
	cfg    *config.Config
	client *openai.Client
	model  string
}

func New(di *do.Injector) (*Agent, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Agent{
		cfg:    cfg,
		client: llm.NewClient(cfg.OpenAI.Extractor),
		model:  cfg.OpenAI.Extractor.Model,
	}, nil
}

var writeLeadTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        "write_lead_record",
		Description: "Persist the completed lead record",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"record": {
					"type": "object",
					"description": "Fields of the lead record"
				}
			}
		}`),
	},
}

// Extract sends one turn to the extractor model and normalizes whatever shape
// comes back. Errors are the caller's cue to keep the previous slots.
func (a *Agent) Extract(ctx context.Context, req Request) (*Result, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extractor input: %w", err)
	}

	prompt := strings.ReplaceAll(extractPromptTemplate, "{input}", string(input))

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
			Tools:               []openai.Tool{writeLeadTool},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(aiResponse.Choices) == 0 {
		return nil, fmt.Errorf("no chat completion found")
	}

	msg := aiResponse.Choices[0].Message

	// The model persisting the record means the conversation is complete.
	for _, call := range msg.ToolCalls {
		if call.Function.Name != "write_lead_record" {
			continue
		}

		slots, ok := NormalizeToolArgs(call.Function.Arguments)
		if !ok {
			continue
		}

		return &Result{Slots: ValidateSlots(slots, req.CurrentSlots), Done: true}, nil
	}

	slots, ok := NormalizeContent(msg.Content)
	if !ok {
		return nil, fmt.Errorf("extractor output is malformed: %q", msg.Content)
	}

	slots = ValidateSlots(slots, req.CurrentSlots)

	// completion is judged over everything known so far, not just this turn
	return &Result{
		Slots: slots,
		Done:  RequiredComplete(lo.Assign(map[string]any{}, req.CurrentSlots, slots)),
	}, nil
}
