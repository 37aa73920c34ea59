package analytics

import (
	"avachat/app/config"
	"log/slog"

	"github.com/amplitude/analytics-go/amplitude"
	"github.com/samber/do"
)

var _ do.Shutdownable = (*Client)(nil)

// Client is a best-effort event sink. Without an API key it degrades to a
// no-op, and no failure here ever reaches the turn pipeline.
type Client struct {
	inner amplitude.Client
}

func NewClient(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	if cfg.Amplitude.APIKey == "" {
		slog.Warn("Amplitude API key is not set, analytics disabled")
		return &Client{}, nil
	}

	inner := amplitude.NewClient(amplitude.NewConfig(cfg.Amplitude.APIKey))

	return &Client{inner: inner}, nil
}

func (c *Client) Emit(eventType, conversationID string, props map[string]any) {
	if c == nil || c.inner == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Analytics emit panicked", "event", eventType, "reason", r)
		}
	}()

	c.inner.Track(amplitude.Event{
		EventType: eventType,
		EventOptions: amplitude.EventOptions{
			UserID: conversationID,
		},
		EventProperties: props,
	})
}

func (c *Client) Shutdown() error {
	if c.inner != nil {
		c.inner.Shutdown()
	}

	return nil
}
