package leadstore

import (
	"avachat/app/config"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/samber/oops"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists finalized conversations. It is fire-and-forget from the
// engine's perspective: callers log errors and move on, retries are left to
// the database layer.
type Store struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewStore(di *do.Injector) (*Store, error) {
	cfg := do.MustInvoke[*config.Config](di)

	if cfg.DB.Disabled {
		slog.Warn("Lead persistence is disabled")
		return &Store{cfg: cfg}, nil
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s",
		cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Database)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, oops.Errorf("failed to connect to postgres: %w", err)
	}

	if err = db.AutoMigrate(&ConversationRecord{}, &UnansweredQuestion{}); err != nil {
		return nil, oops.Errorf("failed to migrate lead tables: %w", err)
	}

	return &Store{cfg: cfg, db: db}, nil
}

// Persist writes one conversation record and, when the conversation ended
// with an unanswered question, one knowledge-gap row.
func (s *Store) Persist(ctx context.Context, conversationID, intentSummary string, qualified bool, status, pendingQuestion string) error {
	if s.db == nil {
		slog.Info("Skipping lead persistence (disabled)",
			"conversation_id", conversationID,
			"qualified", qualified)
		return nil
	}

	now := time.Now()

	record := ConversationRecord{
		ID:              uuid.New(),
		ConversationID:  conversationID,
		AIIntentSummary: intentSummary,
		IsQualified:     qualified,
		Source:          "LLM",
		Status:          status,
		StartTime:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to save conversation: %w", err)
		}

		if pendingQuestion != "" {
			question := UnansweredQuestion{
				ID:             uuid.New(),
				ConversationID: conversationID,
				Question:       pendingQuestion,
				Source:         "chatbot_fallback",
				CreatedAt:      now,
			}

			if err := tx.Create(&question).Error; err != nil {
				return fmt.Errorf("failed to save unanswered question: %w", err)
			}
		}

		return nil
	})
}
