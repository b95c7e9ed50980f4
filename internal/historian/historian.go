// internal/historian/historian.go

// Package historian pops finished games off the results queue and persists
// them in batches.
package historian

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/trivia-lobby/internal/cache"
	"github.com/jason-s-yu/trivia-lobby/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Source yields queued results. Pop returns (nil, nil) when nothing arrived
// within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.GameResult, error)
}

// Writer persists a batch atomically.
type Writer interface {
	WriteResults(ctx context.Context, results []models.GameResult) error
}

// Config tunes batching. Once MaxPending results are held in memory the
// service stops popping until a flush succeeds, leaving the rest queued.
type Config struct {
	BatchSize  int
	FlushDelay time.Duration
	PopTimeout time.Duration
	MaxPending int
}

// Service accumulates results and flushes them when the batch is full or the
// flush ticker fires, whichever comes first.
type Service struct {
	source Source
	writer Writer
	cfg    Config
	clock  clockwork.Clock
	log    logrus.FieldLogger

	batchMu sync.Mutex
	batch   []models.GameResult
}

// New builds a Service. A nil clock means the real clock.
func New(source Source, writer Writer, cfg Config, clock clockwork.Clock, logger logrus.FieldLogger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = 500 * time.Millisecond
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 3 * time.Second
	}
	if cfg.MaxPending < cfg.BatchSize {
		cfg.MaxPending = 10 * cfg.BatchSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		source: source,
		writer: writer,
		cfg:    cfg,
		clock:  clock,
		log:    logger,
		batch:  make([]models.GameResult, 0, cfg.BatchSize),
	}
}

// Run consumes until ctx is cancelled, then flushes whatever is pending.
func (s *Service) Run(ctx context.Context) error {
	s.log.WithFields(logrus.Fields{
		"batchSize":  s.cfg.BatchSize,
		"flushDelay": s.cfg.FlushDelay,
		"maxPending": s.cfg.MaxPending,
	}).Info("Historian started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.flushLoop(gctx) })
	err := g.Wait()

	// ctx is done; use a fresh deadline for the last write.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.flush(flushCtx)
	s.log.Info("Historian stopped")
	return err
}

// Pending returns the number of results waiting for the next flush.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}

func (s *Service) readLoop(ctx context.Context) error {
	paused := false
	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.Pending() >= s.cfg.MaxPending {
			if !paused {
				s.log.WithField("pending", s.Pending()).Warn("Historian: backlog full, pausing reads")
				paused = true
			}
			select {
			case <-ctx.Done():
				return nil
			case <-s.clock.After(s.cfg.FlushDelay):
			}
			continue
		}
		if paused {
			s.log.Info("Historian: backlog drained, resuming reads")
			paused = false
		}

		res, err := s.source.Pop(ctx, s.cfg.PopTimeout)
		switch {
		case err == nil && res == nil:
			continue
		case errors.Is(err, cache.ErrBadRecord):
			s.log.WithError(err).Warn("Dropping undecodable game result")
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			s.log.WithError(err).Error("Historian: pop failed")
			select {
			case <-ctx.Done():
				return nil
			case <-s.clock.After(time.Second):
			}
			continue
		}

		s.batchMu.Lock()
		s.batch = append(s.batch, *res)
		full := len(s.batch) >= s.cfg.BatchSize
		s.batchMu.Unlock()
		if full {
			s.flush(ctx)
		}
	}
}

func (s *Service) flushLoop(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.FlushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.flush(ctx)
		}
	}
}

// flush writes the pending batch. A failed batch is put back in front of
// anything that arrived meanwhile and retried on the next flush.
func (s *Service) flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	pending := s.batch
	s.batch = make([]models.GameResult, 0, s.cfg.BatchSize)
	s.batchMu.Unlock()

	if err := s.writer.WriteResults(ctx, pending); err != nil {
		s.log.WithError(err).WithField("count", len(pending)).Error("Historian: flush failed")
		s.batchMu.Lock()
		s.batch = append(pending, s.batch...)
		s.batchMu.Unlock()
		return
	}
	s.log.WithField("count", len(pending)).Info("Flushed game results to DB")
}
