package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/registry"
)

// source is a loaded profile source, in profile order.
type source struct {
	index int
	entry registry.Entry
}

func (s source) name() string    { return s.entry.Config.Name }
func (s source) backend() string { return string(s.entry.Config.Backend) }

type outcome[T any] struct {
	src   source
	value T
	err   error
}

// fanOut runs task once per source on the shared pool, under timeout. accept
// is called from the collecting goroutine, in completion order, for every
// successful result; returning true ends the collection early and cancels
// the remaining tasks. Failed tasks are logged and skipped. Results arriving
// after the collection ended are discarded.
//
// The returned error is only set when a task could not reach the auth server.
func fanOut[T any](
	ctx context.Context,
	s *service,
	op string,
	timeout time.Duration,
	srcs []source,
	task func(ctx context.Context, src source) (T, error),
	accept func(src source, value T) bool,
) error {
	if len(srcs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan outcome[T], len(srcs))
	var closed atomic.Bool

	for _, src := range srcs {
		s.pool.Go(ctx, func(ctx context.Context) {
			results <- runTask(ctx, s, op, src, task, &closed)
		}, func(err error) {
			results <- outcome[T]{src: src, err: err}
		})
	}

	var authErr error
	pending := make(map[int]source, len(srcs))
	for _, src := range srcs {
		pending[src.index] = src
	}
	defer func() {
		closed.Store(true)
		for _, src := range pending {
			metrics.SourceQueriesTotal.WithLabelValues(src.backend(), op, metrics.OutcomeTimeout).Inc()
			s.logger.Info("source did not answer in time",
				zap.String("operation", op),
				zap.String("source", src.name()),
			)
		}
	}()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return authErr
		case res := <-results:
			delete(pending, res.src.index)
			if res.err != nil {
				if errors.Is(res.err, apperr.ErrAuthUnreachable) && authErr == nil {
					authErr = res.err
				}
				continue
			}
			if accept(res.src, res.value) {
				// The remaining tasks are cancelled, not late.
				pending = nil
				return authErr
			}
		}
	}
	return authErr
}

// runTask calls task with panic isolation and records the source metrics.
func runTask[T any](
	ctx context.Context,
	s *service,
	op string,
	src source,
	task func(ctx context.Context, src source) (T, error),
	closed *atomic.Bool,
) (out outcome[T]) {
	out.src = src
	logger := s.logger.With(
		zap.String("operation", op),
		zap.String("source", src.name()),
		zap.String("backend", src.backend()),
	)
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			out.err = fmt.Errorf("source %s panicked: %v", src.name(), rec)
			logger.Error("source task panicked", zap.Any("panic", rec))
		}
		metrics.SourceQueryDuration.WithLabelValues(src.backend(), op).Observe(time.Since(start).Seconds())
		switch {
		case closed.Load():
			metrics.SourceQueriesTotal.WithLabelValues(src.backend(), op, metrics.OutcomeDiscards).Inc()
		case out.err != nil:
			metrics.SourceQueriesTotal.WithLabelValues(src.backend(), op, metrics.OutcomeError).Inc()
		default:
			metrics.SourceQueriesTotal.WithLabelValues(src.backend(), op, metrics.OutcomeOK).Inc()
		}
	}()

	out.value, out.err = task(ctx, src)
	if out.err != nil && !closed.Load() {
		logger.Warn("source task failed", zap.Error(out.err))
	}
	return out
}
