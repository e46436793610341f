package reliability

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
	"orbnet/pkg/circuitbreaker"
	"orbnet/pkg/retry"
)

// SignalStoreWrapper wraps a SignalStore with bounded retry and a
// circuit breaker. The signal stream sits on every negotiation's
// critical path; when the backing store degrades, handlers must answer
// store-unavailable quickly instead of hanging until every connection
// in the pool times out.
//
// An open breaker surfaces as domain.ErrStoreUnavailable, which the
// error middleware maps to 503. Not-found and validation failures are
// permanent: retrying them only burns the attempt budget.
type SignalStoreWrapper struct {
	store  ports.SignalStore
	logger *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewSignalStoreWrapper creates a new wrapper with retry and circuit breaker
func NewSignalStoreWrapper(
	store ports.SignalStore,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *SignalStoreWrapper {
	retryConfig.Permanent = append(retryConfig.Permanent,
		domain.ErrSessionNotFound,
		domain.ErrMalformedSignal,
		circuitbreaker.ErrOpen,
	)

	wrapper := &SignalStoreWrapper{
		store:          store,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}

	wrapper.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("signal store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

func (w *SignalStoreWrapper) Append(ctx context.Context, session domain.SessionID, role domain.SignalRole, kind domain.SignalKind, payload []byte) (*domain.Signal, error) {
	if !w.retryConfig.Enabled {
		return w.store.Append(ctx, session, role, kind, payload)
	}

	sig, err := retry.RetryWithResult(ctx, w.retryConfig, func() (*domain.Signal, error) {
		return circuitbreaker.ExecuteWithResult(ctx, w.circuitBreaker, func() (*domain.Signal, error) {
			return w.store.Append(ctx, session, role, kind, payload)
		})
	})
	return sig, w.mapError(err)
}

func (w *SignalStoreWrapper) ListSince(ctx context.Context, session domain.SessionID, cursor domain.Cursor) ([]*domain.Signal, error) {
	if !w.retryConfig.Enabled {
		return w.store.ListSince(ctx, session, cursor)
	}

	signals, err := retry.RetryWithResult(ctx, w.retryConfig, func() ([]*domain.Signal, error) {
		return circuitbreaker.ExecuteWithResult(ctx, w.circuitBreaker, func() ([]*domain.Signal, error) {
			return w.store.ListSince(ctx, session, cursor)
		})
	})
	return signals, w.mapError(err)
}

func (w *SignalStoreWrapper) DeleteSession(ctx context.Context, session domain.SessionID) error {
	if !w.retryConfig.Enabled {
		return w.store.DeleteSession(ctx, session)
	}

	err := retry.Retry(ctx, w.retryConfig, func() error {
		return w.circuitBreaker.Execute(ctx, func() error {
			return w.store.DeleteSession(ctx, session)
		})
	})
	return w.mapError(err)
}

// mapError keeps breaker internals out of the caller's error space.
func (w *SignalStoreWrapper) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("signal store circuit open: %w", domain.ErrStoreUnavailable)
	}
	return err
}

// GetCircuitBreakerStats returns circuit breaker statistics
func (w *SignalStoreWrapper) GetCircuitBreakerStats() circuitbreaker.Stats {
	return w.circuitBreaker.GetStats()
}
