package api

import (
	"avachat/app/config"
	"avachat/app/service/turn"
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/samber/do"
)

var _ do.Shutdownable = (*Server)(nil)

type Server struct {
	cfg     *config.Config
	turnSvc *turn.Service
	app     *fiber.App
}

func New(di *do.Injector) (*Server, error) {
	s := &Server{
		cfg:     do.MustInvoke[*config.Config](di),
		turnSvc: do.MustInvoke[*turn.Service](di),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "avachat",
		DisableStartupMessage: true,
	})

	s.app.Use(recover.New())
	s.app.Use(logger.New())

	s.app.Get("/", s.handleHealth)
	s.app.Post("/chat", s.handleChat)
	s.app.Post("/chat/stream", s.handleChatStream)

	return s, nil
}

func (s *Server) Run(_ context.Context) error {
	slog.Info("HTTP API listening", "addr", s.cfg.Server.Addr)

	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "Ava Leasing Chatbot API",
		"status":  "healthy",
	})
}
