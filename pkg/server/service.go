package server

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/research-assistant/pkg/archive"
	"github.com/mikeboe/research-assistant/pkg/database"
	"github.com/mikeboe/research-assistant/pkg/graph"
	"github.com/mikeboe/research-assistant/pkg/research"
)

var (
	ErrNoStore   = errors.New("run history is not configured")
	ErrNoArchive = errors.New("note archive is not configured")
)

// RunStore is the persistence used by background runs.
type RunStore interface {
	LogSink
	CreateRun(ctx context.Context, topic string) (*database.Run, error)
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status string) error
	CompleteRun(ctx context.Context, id uuid.UUID, tasks []research.ResearchTask, report string) error
	FailRun(ctx context.Context, id uuid.UUID, reason string) error
	GetRun(ctx context.Context, id uuid.UUID) (*database.Run, error)
	ListRuns(ctx context.Context, limit int) ([]database.Run, error)
	ListLogs(ctx context.Context, runID uuid.UUID) ([]database.LogEntry, error)
}

// NoteIndex archives and searches run notes.
type NoteIndex interface {
	IndexRun(ctx context.Context, runID, topic string, notes []research.Note) (int, error)
	Search(ctx context.Context, query string, k int, filter archive.Filter) ([]archive.Hit, error)
}

// Service owns the process-wide capabilities and starts research runs.
// Store and Archive are optional.
type Service struct {
	Cfg       research.Config
	Generator research.Generator
	Searcher  research.Searcher
	Store     RunStore
	Archive   NoteIndex
	Logger    *slog.Logger
	GraphOpts []graph.Option

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewService(cfg research.Config, gen research.Generator, search research.Searcher, store RunStore, notes NoteIndex, logger *slog.Logger, graphOpts ...graph.Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		Cfg:       cfg,
		Generator: gen,
		Searcher:  search,
		Store:     store,
		Archive:   notes,
		Logger:    logger,
		GraphOpts: graphOpts,
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

func (s *Service) newEngine(logger *slog.Logger, opts ...research.EngineOption) (*research.ResearchEngine, error) {
	opts = append([]research.EngineOption{
		research.WithLogger(logger),
		research.WithGraphOptions(s.GraphOpts...),
	}, opts...)
	return research.NewEngine(s.Cfg, s.Generator, s.Searcher, opts...)
}

// Stream runs one workflow bound to ctx and yields its progress events.
func (s *Service) Stream(ctx context.Context, topic string) (iter.Seq2[research.ProgressEvent, error], error) {
	engine, err := s.newEngine(s.Logger)
	if err != nil {
		return nil, err
	}
	return engine.Stream(ctx, topic), nil
}

// Research runs one workflow synchronously.
func (s *Service) Research(ctx context.Context, topic string) (research.AgentState, error) {
	engine, err := s.newEngine(s.Logger)
	if err != nil {
		return research.AgentState{}, err
	}
	return engine.Run(ctx, topic)
}

// StartRun records a new run and executes it in the background.
func (s *Service) StartRun(ctx context.Context, topic string) (*database.Run, error) {
	if s.Store == nil {
		return nil, ErrNoStore
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, research.ErrEmptyTopic
	}

	run, err := s.Store.CreateRun(ctx, topic)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWorker(s.baseCtx, run.ID, topic)
	}()
	return run, nil
}

func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*database.Run, error) {
	if s.Store == nil {
		return nil, ErrNoStore
	}
	return s.Store.GetRun(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context) ([]database.Run, error) {
	if s.Store == nil {
		return nil, ErrNoStore
	}
	return s.Store.ListRuns(ctx, 50)
}

func (s *Service) GetRunLogs(ctx context.Context, id uuid.UUID) ([]database.LogEntry, error) {
	if s.Store == nil {
		return nil, ErrNoStore
	}
	if _, err := s.Store.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.ListLogs(ctx, id)
}

func (s *Service) SearchNotes(ctx context.Context, query string, k int, filter archive.Filter) ([]archive.Hit, error) {
	if s.Archive == nil {
		return nil, ErrNoArchive
	}
	return s.Archive.Search(ctx, query, k, filter)
}

// Close cancels background runs and waits for them to record their outcome.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) runWorker(ctx context.Context, runID uuid.UUID, topic string) {
	logger := slog.New(teeHandler{
		s.Logger.Handler(),
		NewDBLogHandler(s.Store, runID, slog.LevelInfo),
	}).With("run_id", runID.String())

	// Status writes must land even when the run itself was cancelled.
	store := context.WithoutCancel(ctx)

	engine, err := s.newEngine(logger, research.WithPhaseHook(func(p research.Phase) {
		if p == research.PhaseDone || p == research.PhaseFailed {
			return
		}
		if err := s.Store.UpdateRunStatus(store, runID, string(p)); err != nil {
			logger.Error("Failed to update run status", "error", err)
		}
	}))
	if err != nil {
		s.failRun(store, logger, runID, fmt.Sprintf("Failed to init engine: %v", err))
		return
	}

	final, err := engine.Run(ctx, topic)
	if err != nil {
		s.failRun(store, logger, runID, fmt.Sprintf("Research failed: %v", err))
		return
	}

	if err := s.Store.CompleteRun(store, runID, final.TaskBoard(), final.FinalReport); err != nil {
		logger.Error("Failed to save final report", "error", err)
		return
	}

	if s.Archive != nil {
		archiveCtx, cancel := context.WithTimeout(store, 2*time.Minute)
		defer cancel()
		if _, err := s.Archive.IndexRun(archiveCtx, runID.String(), topic, final.Notes); err != nil {
			logger.Warn("Failed to archive run notes", "error", err)
		}
	}
}

func (s *Service) failRun(ctx context.Context, logger *slog.Logger, runID uuid.UUID, reason string) {
	logger.Error(reason)
	if err := s.Store.FailRun(ctx, runID, reason); err != nil {
		logger.Error("Failed to mark run failed", "error", err)
	}
}
