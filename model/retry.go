package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type ErrorKind int

const (
	Transient ErrorKind = iota
	Permanent
)

// ServiceError wraps a failure from an external service with a
// retryability classification.
type ServiceError struct {
	Service string
	Kind    ErrorKind
	Err     error
}

func (e *ServiceError) Error() string {
	kind := "transient"
	if e.Kind == Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s: %s error: %v", e.Service, kind, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func NewTransient(service string, err error) *ServiceError {
	return &ServiceError{Service: service, Kind: Transient, Err: err}
}

func NewPermanent(service string, err error) *ServiceError {
	return &ServiceError{Service: service, Kind: Permanent, Err: err}
}

func IsTransient(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind == Transient
	}
	return false
}

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
// Backoff doubles per attempt and is capped at MaxDelay.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	delay := p.BaseDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", p.MaxAttempts, lastErr)
}
