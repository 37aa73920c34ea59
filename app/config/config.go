package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       Log       `yaml:"log"`
	Server    Server    `yaml:"server"`
	OpenAI    OpenAI    `yaml:"openai"`
	RagBot    RagBot    `yaml:"ragbot"`
	Amplitude Amplitude `yaml:"amplitude"`
	DB        DB        `yaml:"db"`
	Session   Session   `yaml:"session"`
	Fallback  Fallback  `yaml:"fallback"`
	Triggers  Triggers  `yaml:"triggers"`
}

type OpenAI struct {
	Extractor ModelConfig `yaml:"extractor" validate:"required"`
	Dialogue  ModelConfig `yaml:"dialogue" validate:"required"`
	Summary   ModelConfig `yaml:"summary" validate:"required"`
}

type ModelConfig struct {
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://api.openai.com/v1" validate:"required"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// OpenAI model
	Model string `yaml:"model" example:"gpt-4.1-2025-04-14" validate:"required"`
}

type Server struct {
	// Listen address of the HTTP API
	Addr string `yaml:"addr" example:":8000"`
}

type RagBot struct {
	// FAQ RAG endpoint url, leave empty to disable FAQ lookups
	URL string `yaml:"url" example:"http://localhost:8001/rag"`
	// How long a looked-up answer is reused for repeated questions
	CacheTTLSec int `yaml:"cache_ttl_sec" example:"600"`
}

type Amplitude struct {
	// Amplitude API key, leave empty to disable analytics
	APIKey string `yaml:"api_key"`
}

type Log struct {
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

type DB struct {
	// Postgres username
	User string `yaml:"user" example:"postgres"`
	// Postgres password
	Pass string `yaml:"pass"`
	// Postgres host
	Host string `yaml:"host" example:"localhost:5432"`
	// Postgres database name
	Database string `yaml:"database" example:"avachat"`
	// Disable persistence entirely (finalized conversations are only logged)
	Disabled bool `yaml:"disabled"`
}

type Session struct {
	// Seconds of silence before a conversation is considered abandoned
	IdleThresholdSec int `yaml:"idle_threshold_sec" example:"120"`
	// Seconds between sweep cycles
	SweepIntervalSec int `yaml:"sweep_interval_sec" example:"1"`
	// Seconds a finalized conversation is kept around for late turns
	EvictGraceSec int `yaml:"evict_grace_sec" example:"600"`
}

type Fallback struct {
	// Minimal responder confidence, replies below it are handed off
	MinConfidence float64 `yaml:"min_confidence" example:"0.7"`
	// Replies shorter than this (after trimming) are handed off
	MinLength int `yaml:"min_length" example:"20"`
	// Message shown to the visitor instead of a fallback reply
	HandoffMessage string `yaml:"handoff_message"`
	// Case-insensitive substrings that mark a reply as a hand-off
	Phrases []string `yaml:"phrases"`
}

type Triggers struct {
	// Ordered keyword rules, first match wins
	Rules []TriggerRule `yaml:"rules"`
}

type TriggerRule struct {
	Variable string   `yaml:"variable" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"required,min=1"`
}

const defaultHandoffMessage = "That's a great question! Let me check with my team and get right back to you. " +
	"In the meantime, is there anything else I can help you with?"

var defaultFallbackPhrases = []string{
	"i don't understand",
	"i do not understand",
	"not sure",
	"let me check with",
	"beyond my",
	"i can't help",
	"i cannot help",
	"unable to answer",
}

// Product copy, kept as data so it can be swapped without a rebuild.
var defaultTriggerRules = []TriggerRule{
	{Variable: "full_name", Keywords: []string{"your full name"}},
	{Variable: "bedroom_size", Keywords: []string{"bedroom size", "1 br|2 br|3 br"}},
	{Variable: "calendar", Keywords: []string{"move-in date", "move in date", "date-picker"}},
	{Variable: "user_action", Keywords: []string{"next action", "apply now"}},
	{Variable: "faq", Keywords: []string{"top questions", "anything else i can clarify"}},
	{Variable: "incentive_25", Keywords: []string{"$25"}},
	{Variable: "incentive_50", Keywords: []string{"$50"}},
	{Variable: "incentive", Keywords: []string{"application fee", "off your first month"}},
	{Variable: "price_range", Keywords: []string{"price range"}},
	{Variable: "work_place", Keywords: []string{"work place", "where is your work", "bringing you to the area"}},
	{Variable: "occupancy", Keywords: []string{"occupants", "people will be living"}},
	{Variable: "pet", Keywords: []string{"furry friends", "pets", "weigh"}},
	{Variable: "features", Keywords: []string{"special features"}},
	{Variable: "tour", Keywords: []string{"in-person tour", "self-guided tour", "virtual tour", "available times"}},
}

func Load() (*Config, error) {
	var result Config

	data, err := os.ReadFile("config.yaml")
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	result.ApplyDefaults()

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.DB.User == "" {
		c.DB.User = "postgres"
	}
	if c.DB.Pass == "" {
		c.DB.Pass = "postgres"
	}
	if c.DB.Host == "" {
		c.DB.Host = "localhost:5432"
	}
	if c.DB.Database == "" {
		c.DB.Database = "avachat"
	}
	if c.RagBot.CacheTTLSec <= 0 {
		c.RagBot.CacheTTLSec = 600
	}
	if c.Session.IdleThresholdSec <= 0 {
		c.Session.IdleThresholdSec = 120
	}
	if c.Session.SweepIntervalSec <= 0 {
		c.Session.SweepIntervalSec = 1
	}
	if c.Session.EvictGraceSec <= 0 {
		c.Session.EvictGraceSec = 600
	}
	if c.Fallback.MinConfidence <= 0 {
		c.Fallback.MinConfidence = 0.7
	}
	if c.Fallback.MinLength <= 0 {
		c.Fallback.MinLength = 20
	}
	if c.Fallback.HandoffMessage == "" {
		c.Fallback.HandoffMessage = defaultHandoffMessage
	}
	if len(c.Fallback.Phrases) == 0 {
		c.Fallback.Phrases = defaultFallbackPhrases
	}
	if len(c.Triggers.Rules) == 0 {
		c.Triggers.Rules = defaultTriggerRules
	}
}

func (s Session) IdleThreshold() time.Duration {
	return time.Duration(s.IdleThresholdSec) * time.Second
}

func (s Session) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSec) * time.Second
}

func (s Session) EvictGrace() time.Duration {
	return time.Duration(s.EvictGraceSec) * time.Second
}
