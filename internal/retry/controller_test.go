package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prdgen/internal/domain"
)

func okCheck(string) domain.ValidationResult { return domain.Valid() }

func TestRunAcceptsFirstValidResponse(t *testing.T) {
	c := New(3, zap.NewNop())
	calls := 0
	raw, attempts, err := c.Run(context.Background(), "structure/scan",
		func(ctx context.Context, hint string) (string, error) {
			calls++
			return `{"ok": true}`, nil
		}, okCheck)
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
	require.Equal(t, `{"ok": true}`, raw)
}

func TestRunRepairsThenAccepts(t *testing.T) {
	c := New(3, zap.NewNop())
	var hints []string
	raw, attempts, err := c.Run(context.Background(), "semantic/auth",
		func(ctx context.Context, hint string) (string, error) {
			hints = append(hints, hint)
			if len(hints) < 3 {
				return "bad", nil
			}
			return "good", nil
		},
		func(raw string) domain.ValidationResult {
			if raw == "good" {
				return domain.Valid()
			}
			return domain.Invalid(domain.FailIncomplete, []string{"loginFlow"}, nil, "missing loginFlow")
		})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, "good", raw)

	// First attempt carries no hint; repair attempts name the missing entries.
	require.Equal(t, "", hints[0])
	require.Contains(t, hints[1], "loginFlow")
	require.Contains(t, hints[2], "loginFlow")
}

func TestRunExhaustsBudget(t *testing.T) {
	c := New(3, zap.NewNop())
	calls := 0
	_, attempts, err := c.Run(context.Background(), "doc/grouping",
		func(ctx context.Context, hint string) (string, error) {
			calls++
			return "never valid", nil
		},
		func(string) domain.ValidationResult {
			return domain.Invalid(domain.FailMalformed, nil, nil, "no JSON")
		})
	require.Equal(t, 3, calls)
	require.Equal(t, 3, attempts)

	var exhausted *domain.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, "doc/grouping", exhausted.Target)
	require.Equal(t, 3, exhausted.Attempts)
	require.Equal(t, domain.FailMalformed, exhausted.LastKind)
}

func TestRunStopsOnRefusal(t *testing.T) {
	c := New(3, zap.NewNop())
	calls := 0
	_, attempts, err := c.Run(context.Background(), "structure/scan",
		func(ctx context.Context, hint string) (string, error) {
			calls++
			return "", &domain.GatewayError{Kind: domain.FailRefusal, SessionID: "s", Err: errors.New("refused")}
		}, okCheck)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, attempts)

	var exhausted *domain.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, domain.FailRefusal, exhausted.LastKind)
}

func TestRunRetriesGatewayTimeout(t *testing.T) {
	c := New(2, zap.NewNop())
	calls := 0
	raw, attempts, err := c.Run(context.Background(), "semantic/billing",
		func(ctx context.Context, hint string) (string, error) {
			calls++
			if calls == 1 {
				return "", &domain.GatewayError{Kind: domain.FailTimeout, SessionID: "s", Err: context.DeadlineExceeded}
			}
			return "late but fine", nil
		}, okCheck)
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, "late but fine", raw)
}

func TestRunBackoffHonorsCancellation(t *testing.T) {
	c := New(3, zap.NewNop())
	c.Backoff = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, _, err := c.Run(ctx, "structure/scan",
		func(ctx context.Context, hint string) (string, error) {
			calls++
			cancel()
			return "", &domain.GatewayError{Kind: domain.FailTransport, SessionID: "s", Err: errors.New("boom")}
		}, okCheck)

	// The canceled context cuts the backoff short instead of waiting out
	// the full delay.
	require.Equal(t, 1, calls)
	var exhausted *domain.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
}

func TestRepairHintPhrasing(t *testing.T) {
	hint := RepairHint(domain.Invalid(domain.FailPolicy, nil, []string{"SQL", "endpoint"}, "forbidden"))
	require.Contains(t, hint, "SQL")
	require.Contains(t, hint, "endpoint")
	require.True(t, strings.Contains(hint, "business language"))

	hint = RepairHint(domain.Invalid(domain.FailMalformed, nil, nil, "no JSON"))
	require.Contains(t, hint, "JSON")

	hint = RepairHint(domain.ValidationResult{
		Kind:       domain.FailIncomplete,
		Duplicates: []string{"auth/login.go"},
		Detail:     "entries listed more than once: auth/login.go",
	})
	require.Contains(t, hint, "auth/login.go")
	require.Contains(t, hint, "more than once")
}
