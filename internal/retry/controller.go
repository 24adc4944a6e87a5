package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"prdgen/internal/domain"
)

// Controller drives the query/validate/repair loop for a single logical
// target. Each attempt issues exactly one query; an accepted response is
// never re-queried.
type Controller struct {
	maxAttempts int
	log         *zap.Logger

	// Backoff, when positive, is the base delay before re-attempts; it
	// doubles per attempt. Zero means immediate retries.
	Backoff time.Duration
}

func New(maxAttempts int, log *zap.Logger) *Controller {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{maxAttempts: maxAttempts, log: log}
}

// Action performs one model query. On repair attempts the hint carries a
// corrective instruction derived from the previous validation failure; it is
// empty on the first attempt.
type Action func(ctx context.Context, hint string) (string, error)

// Check validates a raw response.
type Check func(raw string) domain.ValidationResult

// Run executes up to maxAttempts query/validate rounds and returns the first
// accepted response with the number of attempts spent. When the budget runs
// out, or a non-retryable failure occurs, it returns *domain.RetryExhaustedError.
func (c *Controller) Run(ctx context.Context, target string, action Action, check Check) (string, int, error) {
	var (
		hint     string
		lastKind domain.FailKind
		lastErr  error
		spent    int
	)

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		spent = attempt
		if attempt > 1 && c.Backoff > 0 {
			if err := sleep(ctx, c.Backoff*time.Duration(1<<(attempt-2))); err != nil {
				lastKind, lastErr = domain.FailTimeout, err
				break
			}
		}

		raw, err := action(ctx, hint)
		if err != nil {
			var gerr *domain.GatewayError
			if errors.As(err, &gerr) {
				lastKind, lastErr = gerr.Kind, err
			} else {
				lastKind, lastErr = domain.FailTransport, err
			}
			c.log.Warn("query failed",
				zap.String("target", target),
				zap.Int("attempt", attempt),
				zap.String("kind", string(lastKind)),
				zap.Error(err))
			if !lastKind.Retryable() {
				break
			}
			hint = ""
			continue
		}

		res := check(raw)
		if res.OK {
			return raw, attempt, nil
		}

		lastKind = res.Kind
		lastErr = fmt.Errorf("validation failed: %s", res.Detail)
		hint = RepairHint(res)
		c.log.Warn("response rejected",
			zap.String("target", target),
			zap.Int("attempt", attempt),
			zap.String("kind", string(res.Kind)),
			zap.String("detail", res.Detail))
	}

	return "", spent, &domain.RetryExhaustedError{
		Target:   target,
		Attempts: spent,
		LastKind: lastKind,
		LastErr:  lastErr,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RepairHint turns a structured validation failure into a corrective
// instruction for the next attempt.
func RepairHint(res domain.ValidationResult) string {
	switch res.Kind {
	case domain.FailMalformed:
		return "Your previous response did not contain a parsable JSON object. " +
			"Respond with a single valid JSON object and nothing else."
	case domain.FailIncomplete:
		if len(res.Duplicates) > 0 {
			return fmt.Sprintf("Your previous response listed these entries more "+
				"than once: %s. Assign each entry exactly once.",
				strings.Join(res.Duplicates, ", "))
		}
		if len(res.MissingKeys) > 0 {
			return fmt.Sprintf("Your previous response was incomplete. "+
				"It must also account for: %s. Include every listed entry.",
				strings.Join(res.MissingKeys, ", "))
		}
		return "Your previous response was incomplete: " + res.Detail
	case domain.FailPolicy:
		if len(res.Forbidden) > 0 {
			return fmt.Sprintf("Your previous response used implementation terms "+
				"that are not allowed: %s. Rephrase in business language without them.",
				strings.Join(res.Forbidden, ", "))
		}
		return "Your previous response violated the output policy: " + res.Detail
	default:
		return ""
	}
}
