package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"studyrag/app/api"
	"studyrag/config"
	"studyrag/ingest"
	"studyrag/model"
	"studyrag/rag"
	"studyrag/store"

	"github.com/gofiber/fiber/v2"
)

var fiberConfig = fiber.Config{
	ErrorHandler: api.ErrorHandler,
}

type Server struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewServer(cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// NewApp wires handlers and routes onto a fiber app. Split out from Run
// so tests can exercise routes without a listener.
func NewApp(db store.DBStorer, orchestrator *ingest.Orchestrator, chat *rag.ChatService, flashcards *rag.FlashcardService) *fiber.App {
	var (
		app              = fiber.New(fiberConfig)
		checkHandler     = api.NewCheckHandler()
		documentHandler  = api.NewDocumentHandler(db, orchestrator)
		chatHandler      = api.NewChatHandler(db, chat)
		flashcardHandler = api.NewFlashcardHandler(db, flashcards)
		check            = app.Group("/check")
		apiv1            = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	apiv1.Post("/documents", documentHandler.HandleIngest)
	apiv1.Get("/documents/:id", documentHandler.HandleGetDocument)
	apiv1.Post("/documents/:id/chat", chatHandler.HandleChat)
	apiv1.Post("/documents/:id/flashcards", flashcardHandler.HandleGenerate)
	apiv1.Post("/documents/:id/flashcards/:cardID/evaluate", flashcardHandler.HandleEvaluate)

	return app
}

func (s *Server) Run() error {
	ctx := context.Background()

	embedder := model.NewEmbeddingClient(s.cfg.Embedding.URL, s.cfg.Embedding.VectorDim, s.cfg.Embedding.RateLimit)
	llm := model.NewLLMClient(s.cfg.LLM.URL, s.cfg.LLM.Model)

	// The chunk table's vector width follows the embedder, so the two
	// cannot drift apart.
	pool, err := store.NewPostgresStore(ctx, s.cfg.Database.URL, embedder.Dimension())
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Init(ctx); err != nil {
		return err
	}

	chunker := ingest.NewChunker(ingest.ChunkerConfig{
		Window:      s.cfg.Chunker.Window,
		Overlap:     s.cfg.Chunker.Overlap,
		MinFragment: s.cfg.Chunker.MinFragment,
	})
	orchestrator := ingest.NewOrchestrator(pool, ingest.NewPDFExtractor(), embedder, chunker, ingest.OrchestratorConfig{
		Workers:   s.cfg.Ingest.Workers,
		BatchSize: s.cfg.Ingest.BatchSize,
	}, s.logger)

	counter := rag.NewTokenCounter()
	retriever := rag.NewRetriever(pool, embedder, counter, rag.RetrieverConfig{
		TopK:        s.cfg.Retrieval.TopK,
		TokenBudget: s.cfg.Retrieval.TokenBudget,
	})
	chat := rag.NewChatService(retriever, rag.NewGenerator(llm))
	flashcards := rag.NewFlashcardService(pool, llm, s.logger)

	app := NewApp(pool, orchestrator, chat, flashcards)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		s.logger.Info("shutting down")
		if err := app.Shutdown(); err != nil {
			s.logger.Error("shutdown failed", "error", err)
		}
	}()

	s.logger.Info("server listening", "addr", s.cfg.Server.Addr)
	return app.Listen(s.cfg.Server.Addr)
}
