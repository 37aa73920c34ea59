package dialogue

import (
	"avachat/app/client/llm"
	"avachat/app/client/ragbot"
	"avachat/app/config"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "embed"

	"github.com/samber/do"
	"github.com/sashabaranov/go-openai"
)

//go:embed dialogue_prompt.txt
var dialoguePromptTemplate string

const (
	maxReasonDuration = 30 * time.Second
	replyTemperature  = 0.2
)

type Agent struct {
	cfg       *config.Config
	ragClient *ragbot.Client

	client *openai.Client
	model  string
}

func New(di *do.Injector) (*Agent, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Agent{
		cfg:       cfg,
		ragClient: do.MustInvoke[*ragbot.Client](di),
		client:    llm.NewClient(cfg.OpenAI.Dialogue),
		model:     cfg.OpenAI.Dialogue.Model,
	}, nil
}

// Reply produces one dialogue turn. FAQ queries short-circuit to the RAG
// endpoint, everything else goes through the story prompt.
func (a *Agent) Reply(ctx context.Context, userMessage string, knownSlots map[string]any, faqQuery bool) (string, error) {
	if faqQuery && a.ragClient.Enabled() {
		answer, err := a.ragClient.Lookup(ctx, userMessage)
		if err != nil {
			return "", fmt.Errorf("faq lookup failed: %w", err)
		}

		return answer, nil
	}

	messages, err := a.buildMessages(userMessage, knownSlots)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, maxReasonDuration)
	defer cancel()

	aiResponse, err := a.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:               a.model,
			Messages:            messages,
			MaxCompletionTokens: 500,
			Temperature:         replyTemperature,
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

// StreamReply is the token-stream variant: emit is called with raw content
// chunks as they arrive. FAQ answers arrive as a single chunk.
func (a *Agent) StreamReply(ctx context.Context, userMessage string, knownSlots map[string]any, faqQuery bool, emit func(chunk string) error) error {
	if faqQuery && a.ragClient.Enabled() {
		answer, err := a.ragClient.Lookup(ctx, userMessage)
		if err != nil {
			return fmt.Errorf("faq lookup failed: %w", err)
		}

		return emit(answer)
	}

	messages, err := a.buildMessages(userMessage, knownSlots)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, maxReasonDuration)
	defer cancel()

	stream, err := a.client.CreateChatCompletionStream(
		ctx,
		openai.ChatCompletionRequest{
			Model:               a.model,
			Messages:            messages,
			MaxCompletionTokens: 500,
			Temperature:         replyTemperature,
			Stream:              true,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create chat completion stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream recv failed: %w", err)
		}

		if len(resp.Choices) == 0 {
			continue
		}

		if delta := resp.Choices[0].Delta.Content; delta != "" {
			if err = emit(delta); err != nil {
				return err
			}
		}
	}
}

func (a *Agent) buildMessages(userMessage string, knownSlots map[string]any) ([]openai.ChatCompletionMessage, error) {
	helperData, err := json.Marshal(knownSlots)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal helper data: %w", err)
	}

	return []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: dialoguePromptTemplate,
		},
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: "HELPER_DATA:\n" + string(helperData),
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: userMessage,
		},
	}, nil
}
