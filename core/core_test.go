package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockValidator struct {
	validateFunc func(ctx context.Context, token string) (any, error)
}

func (m *mockValidator) ValidateToken(ctx context.Context, token string) (any, error) {
	if m.validateFunc != nil {
		return m.validateFunc(ctx, token)
	}
	return nil, errors.New("not implemented")
}

type logCall struct {
	msg  string
	args []any
}

type mockLogger struct {
	debugCalls []logCall
	infoCalls  []logCall
	warnCalls  []logCall
	errorCalls []logCall
}

func (m *mockLogger) Debug(msg string, args ...any) {
	m.debugCalls = append(m.debugCalls, logCall{msg, args})
}

func (m *mockLogger) Info(msg string, args ...any) {
	m.infoCalls = append(m.infoCalls, logCall{msg, args})
}

func (m *mockLogger) Warn(msg string, args ...any) {
	m.warnCalls = append(m.warnCalls, logCall{msg, args})
}

func (m *mockLogger) Error(msg string, args ...any) {
	m.errorCalls = append(m.errorCalls, logCall{msg, args})
}

type mockMetrics struct {
	mu         sync.Mutex
	counters   map[string]int
	histograms map[string]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{counters: map[string]int{}, histograms: map[string]int{}}
}

func (m *mockMetrics) IncCounter(name string, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name+"/"+tags["result"]]++
}

func (m *mockMetrics) ObserveHistogram(name string, _ float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[name]++
}

type mockSpan struct {
	ended bool
	errs  []error
}

func (s *mockSpan) SetTag(string, any) {}
func (s *mockSpan) RecordError(err error) { s.errs = append(s.errs, err) }
func (s *mockSpan) End() { s.ended = true }

type mockTracer struct {
	spans []*mockSpan
	names []string
}

func (tr *mockTracer) Start(ctx context.Context, operation string) (context.Context, Span) {
	s := &mockSpan{}
	tr.spans = append(tr.spans, s)
	tr.names = append(tr.names, operation)
	return ctx, s
}

func TestNew(t *testing.T) {
	validator := &mockValidator{
		validateFunc: func(ctx context.Context, token string) (any, error) {
			return "claims", nil
		},
	}

	t.Run("successful creation with required options", func(t *testing.T) {
		c, err := New(WithValidator(validator))
		require.NoError(t, err)
		assert.False(t, c.credentialsOptional)
		assert.IsType(t, NoopLogger{}, c.logger)
		assert.IsType(t, NoopMetrics{}, c.metrics)
		assert.IsType(t, NoopTracer{}, c.tracer)
	})

	t.Run("successful creation with all options", func(t *testing.T) {
		logger := &mockLogger{}
		c, err := New(
			WithValidator(validator),
			WithCredentialsOptional(true),
			WithLogger(logger),
			WithMetrics(newMockMetrics()),
			WithTracer(&mockTracer{}),
		)
		require.NoError(t, err)
		assert.True(t, c.credentialsOptional)
		assert.Same(t, logger, c.logger)
	})

	testCases := []struct {
		name    string
		opts    []Option
		wantErr string
	}{
		{
			name:    "validator is missing",
			opts:    nil,
			wantErr: "validator is required",
		},
		{
			name:    "validator is nil",
			opts:    []Option{WithValidator(nil)},
			wantErr: "validator cannot be nil",
		},
		{
			name:    "logger is nil",
			opts:    []Option{WithValidator(validator), WithLogger(nil)},
			wantErr: "logger cannot be nil",
		},
		{
			name:    "metrics is nil",
			opts:    []Option{WithValidator(validator), WithMetrics(nil)},
			wantErr: "metrics cannot be nil",
		},
		{
			name:    "tracer is nil",
			opts:    []Option{WithValidator(validator), WithTracer(nil)},
			wantErr: "tracer cannot be nil",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			c, err := New(testCase.opts...)
			assert.Nil(t, c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), testCase.wantErr)
		})
	}
}

func TestCore_CheckToken(t *testing.T) {
	t.Run("successful validation", func(t *testing.T) {
		expectedClaims := map[string]any{"sub": "client-42"}
		metrics := newMockMetrics()
		tracer := &mockTracer{}
		logger := &mockLogger{}

		c, err := New(
			WithValidator(&mockValidator{
				validateFunc: func(ctx context.Context, token string) (any, error) {
					return expectedClaims, nil
				},
			}),
			WithLogger(logger),
			WithMetrics(metrics),
			WithTracer(tracer),
		)
		require.NoError(t, err)

		claims, err := c.CheckToken(context.Background(), "valid-token")
		require.NoError(t, err)
		assert.Equal(t, expectedClaims, claims)

		assert.Equal(t, 1, metrics.counters["token_validations_total/ok"])
		assert.Equal(t, 1, metrics.histograms["token_validation_seconds"])
		require.Len(t, tracer.spans, 1)
		assert.Equal(t, "core.CheckToken", tracer.names[0])
		assert.True(t, tracer.spans[0].ended)
		require.Len(t, logger.debugCalls, 1)
		assert.Contains(t, logger.debugCalls[0].msg, "validated successfully")
	})

	t.Run("validation error is returned unchanged", func(t *testing.T) {
		expectedErr := NewValidationError(ErrorCodeTokenExpired, "token has expired", nil)
		metrics := newMockMetrics()
		tracer := &mockTracer{}
		logger := &mockLogger{}

		c, err := New(
			WithValidator(&mockValidator{
				validateFunc: func(ctx context.Context, token string) (any, error) {
					return nil, expectedErr
				},
			}),
			WithLogger(logger),
			WithMetrics(metrics),
			WithTracer(tracer),
		)
		require.NoError(t, err)

		claims, err := c.CheckToken(context.Background(), "expired-token")
		assert.Nil(t, claims)
		assert.Same(t, expectedErr, err)

		assert.Equal(t, 1, metrics.counters["token_validations_total/token_expired"])
		require.Len(t, tracer.spans, 1)
		assert.Equal(t, []error{expectedErr}, tracer.spans[0].errs)
		require.Len(t, logger.errorCalls, 1)
		assert.Contains(t, logger.errorCalls[0].msg, "validation failed")
	})

	t.Run("empty token with credentials required", func(t *testing.T) {
		metrics := newMockMetrics()
		logger := &mockLogger{}
		c, err := New(
			WithValidator(&mockValidator{
				validateFunc: func(ctx context.Context, token string) (any, error) {
					t.Fatal("validator should not be called with empty token")
					return nil, nil
				},
			}),
			WithCredentialsOptional(false),
			WithLogger(logger),
			WithMetrics(metrics),
		)
		require.NoError(t, err)

		claims, err := c.CheckToken(context.Background(), "")
		assert.Nil(t, claims)
		assert.Equal(t, ErrJWTMissing, err)
		assert.Equal(t, 1, metrics.counters["token_validations_total/token_missing"])
		require.Len(t, logger.warnCalls, 1)
		assert.Contains(t, logger.warnCalls[0].msg, "credentials are required")
	})

	t.Run("empty token with credentials optional", func(t *testing.T) {
		logger := &mockLogger{}
		c, err := New(
			WithValidator(&mockValidator{
				validateFunc: func(ctx context.Context, token string) (any, error) {
					t.Fatal("validator should not be called with empty token")
					return nil, nil
				},
			}),
			WithCredentialsOptional(true),
			WithLogger(logger),
		)
		require.NoError(t, err)

		claims, err := c.CheckToken(context.Background(), "")
		assert.NoError(t, err)
		assert.Nil(t, claims)
		require.Len(t, logger.debugCalls, 1)
		assert.Contains(t, logger.debugCalls[0].msg, "credentials are optional")
	})

	t.Run("context is passed to validator", func(t *testing.T) {
		type ctxKey struct{}
		ctx := context.WithValue(context.Background(), ctxKey{}, "test-value")

		var received context.Context
		c, err := New(WithValidator(&mockValidator{
			validateFunc: func(ctx context.Context, token string) (any, error) {
				received = ctx
				return "claims", nil
			},
		}))
		require.NoError(t, err)

		_, err = c.CheckToken(ctx, "token")
		require.NoError(t, err)
		assert.Equal(t, "test-value", received.Value(ctxKey{}))
	})
}

type codedTestError struct{}

func (codedTestError) Error() string     { return "no key" }
func (codedTestError) ErrorCode() string { return ErrorCodeJWKSKeyNotFound }

func TestErrorCode(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "validation error",
			err:  NewValidationError(ErrorCodeInvalidIssuer, "bad issuer", nil),
			want: ErrorCodeInvalidIssuer,
		},
		{
			name: "wrapped validation error",
			err:  fmt.Errorf("outer: %w", NewValidationError(ErrorCodeInvalidAudience, "bad aud", nil)),
			want: ErrorCodeInvalidAudience,
		},
		{
			name: "coded error",
			err:  fmt.Errorf("lookup: %w", codedTestError{}),
			want: ErrorCodeJWKSKeyNotFound,
		},
		{
			name: "missing token",
			err:  ErrJWTMissing,
			want: ErrorCodeTokenMissing,
		},
		{
			name: "anything else",
			err:  errors.New("boom"),
			want: ErrorCodeInternal,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.want, ErrorCode(testCase.err))
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Run("error message with details", func(t *testing.T) {
		err := NewValidationError(ErrorCodeInvalidSignature, "token signature verification failed", errors.New("signature invalid"))

		assert.Equal(t, "token signature verification failed: signature invalid", err.Error())
	})

	t.Run("error message without details", func(t *testing.T) {
		err := NewValidationError(ErrorCodeTokenMissing, "token is missing", nil)

		assert.Equal(t, "token is missing", err.Error())
	})

	t.Run("Unwrap returns details", func(t *testing.T) {
		details := errors.New("underlying error")
		err := NewValidationError(ErrorCodeInvalidClaims, "validation failed", details)

		assert.Equal(t, details, errors.Unwrap(err))
	})

	t.Run("Is works with ErrJWTInvalid", func(t *testing.T) {
		err := NewValidationError(ErrorCodeInvalidSignature, "bad signature", nil)

		assert.True(t, errors.Is(err, ErrJWTInvalid))
	})
}
