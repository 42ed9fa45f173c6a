// Package core exposes the labstock inventory operations: storages, reagents
// and their attachments, usage reports with stock adjustment, users and
// supporting materials. Every write runs in one store transaction.
package core

import (
	"context"
	"errors"
	"time"

	"labstock/internal/blob"
	"labstock/internal/infra/persistence/memory"
	"labstock/pkg/domain"
)

// Service wraps a PersistentStore and an attachment blob store.
type Service struct {
	store   domain.PersistentStore
	blobs   blob.Store
	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used for timing and usage dates.
func WithClock(c Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetricsRecorder sets the recorder observing every operation.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the tracer wrapping every operation in a span.
func WithTracer(t Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithBlobStore sets where reagent images and safety data sheets are kept.
func WithBlobStore(b blob.Store) ServiceOption {
	return func(s *Service) {
		if b != nil {
			s.blobs = b
		}
	}
}

// NewService constructs a service over store. Attachments go to an in-memory
// blob store unless WithBlobStore is given.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		clock:   ClockFunc(nil),
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.blobs == nil {
		s.blobs = blob.NewMemory()
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store. The
// store stamps records with the service clock.
func NewInMemoryService(engine *domain.RulesEngine, opts ...ServiceOption) *Service {
	s := NewService(nil, opts...)
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	s.store = memory.NewStore(engine, memory.WithNowFunc(s.clock.Now))
	return s
}

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Blobs returns the attachment store.
func (s *Service) Blobs() blob.Store { return s.blobs }

// Close releases the persistent store.
func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// run executes fn in one transaction and reports the outcome to the logger,
// metrics recorder and tracer.
func (s *Service) run(ctx context.Context, op string, fn func(domain.Transaction) error) (domain.Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	s.finish(ctx, op, start, span, err)
	if err == nil {
		for _, w := range res.Warnings() {
			s.logger.Warn("rule warning", "op", op, "rule", w.Rule, "entity", w.Entity, "id", w.EntityID, "message", w.Message)
		}
	}
	return res, err
}

// view executes fn against a read-only snapshot.
func (s *Service) view(ctx context.Context, op string, fn func(domain.TransactionView) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	err := s.store.View(ctx, fn)
	s.finish(ctx, op, start, span, err)
	return err
}

func (s *Service) finish(ctx context.Context, op string, start time.Time, span TraceSpan, err error) {
	elapsed := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	span.End(err)
	switch {
	case err == nil:
		s.logger.Debug("operation completed", "op", op, "duration", elapsed)
	case isExpected(err):
		s.logger.Info("operation rejected", "op", op, "error", err)
	default:
		s.logger.Error("operation failed", "op", op, "error", err)
	}
}

// isExpected reports errors caused by the caller's input rather than the store.
func isExpected(err error) bool {
	var rv domain.RuleViolationError
	return domain.IsValidation(err) || domain.IsNotFound(err) || domain.IsConflict(err) ||
		errors.As(err, &rv) || errors.Is(err, domain.ErrInvalidCredentials) || errors.Is(err, domain.ErrInactiveUser)
}
