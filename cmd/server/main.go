package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikeboe/research-assistant/pkg/archive"
	"github.com/mikeboe/research-assistant/pkg/clients"
	"github.com/mikeboe/research-assistant/pkg/config"
	"github.com/mikeboe/research-assistant/pkg/database"
	"github.com/mikeboe/research-assistant/pkg/embeddings"
	"github.com/mikeboe/research-assistant/pkg/research"
	"github.com/mikeboe/research-assistant/pkg/research/tools"
	"github.com/mikeboe/research-assistant/pkg/server"
	"github.com/mikeboe/research-assistant/pkg/splitter"
	"github.com/mikeboe/research-assistant/pkg/vectorstore"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, err := clients.NewGenerator(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init generator", "error", err)
		os.Exit(1)
	}

	var (
		store server.RunStore
		notes server.NoteIndex
	)
	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.InitSchema(ctx); err != nil {
			slog.Error("Failed to initialize schema", "error", err)
			os.Exit(1)
		}
		store = db

		if idx, err := newArchive(ctx, cfg, db); err != nil {
			slog.Warn("Note archive disabled", "error", err)
		} else {
			notes = idx
		}
	} else {
		slog.Warn("DATABASE_URL not set, run history and note archive are disabled")
	}

	svc := server.NewService(research.Config{
		SearchMaxResults:   cfg.SearchMaxResults,
		MaxParallel:        cfg.MaxParallel,
		EmitTaskCompletion: cfg.EmitTaskCompletion,
	}, gen, tools.NewArxivClient(), store, notes, slog.Default())
	defer svc.Close()

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id", "Mcp-Protocol-Version"},
		ExposeHeaders:   []string{"Content-Length", "Mcp-Session-Id"},
	}))

	server.NewHandler(svc).RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	mcpHandler := gin.WrapH(server.NewMCPHandler(server.NewMCPServer(svc)))
	r.Any("/mcp", mcpHandler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "port", cfg.Port, "provider", cfg.LLMProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}

func newArchive(ctx context.Context, cfg *config.Config, db *database.PostgresDB) (*archive.Archive, error) {
	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureVectorExtension(ctx); err != nil {
		return nil, err
	}
	if err := db.CreateNotesTable(ctx, cfg.CollectionName, embedder.Dimension()); err != nil {
		return nil, err
	}
	vs, err := vectorstore.NewPGVectorStore(db.Pool, cfg.CollectionName)
	if err != nil {
		return nil, err
	}
	sp := splitter.NewNoteSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	return archive.New(sp, embedder, vs, slog.Default()), nil
}
