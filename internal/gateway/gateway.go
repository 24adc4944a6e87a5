// Package gateway is the single choke point for model traffic. Every stage
// talks to the LLM through Query, so timeout policy, failure classification,
// and the diagnostic call log live in one place.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"prdgen/internal/domain"
	"prdgen/internal/port"
)

type Gateway struct {
	llm     port.LLM
	store   port.StateStore
	log     *zap.Logger
	timeout time.Duration
}

func New(llm port.LLM, store port.StateStore, log *zap.Logger, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Gateway{llm: llm, store: store, log: log, timeout: timeout}
}

// Open starts a session for a scope. The scope name is suffixed with a
// short unique id so re-opened scopes never collide in the call log.
func (g *Gateway) Open(ctx context.Context, scope, systemPrompt string) (port.Session, error) {
	id := scope + "/" + uuid.NewString()[:8]
	sess, err := g.llm.Open(ctx, id, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to open session %s: %w", id, err)
	}
	g.log.Debug("session opened", zap.String("session", id), zap.String("model", g.llm.ModelName()))
	return sess, nil
}

// Query sends one prompt within a session, bounded by the gateway timeout.
// The outcome is recorded before any error is returned; a timeout aborts
// only this attempt, never the surrounding stage.
func (g *Gateway) Query(ctx context.Context, sess port.Session, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := sess.Send(ctx, prompt)
	latency := time.Since(start)

	outcome := "ok"
	var kind domain.FailKind
	if err != nil {
		kind = classify(err)
		outcome = string(kind)
	}

	rec := domain.CallRecord{
		SessionID:    sess.ID(),
		PromptDigest: digest(prompt),
		LatencyMS:    latency.Milliseconds(),
		Outcome:      outcome,
		At:           start,
	}
	if recErr := g.store.AppendCallRecord(rec); recErr != nil {
		g.log.Error("failed to record call", zap.String("session", sess.ID()), zap.Error(recErr))
	}

	if err != nil {
		g.log.Warn("model call failed",
			zap.String("session", sess.ID()),
			zap.String("kind", string(kind)),
			zap.Duration("latency", latency),
			zap.Error(err))
		return "", &domain.GatewayError{Kind: kind, SessionID: sess.ID(), Err: err}
	}

	g.log.Debug("model call ok",
		zap.String("session", sess.ID()),
		zap.Duration("latency", latency),
		zap.Int("response_bytes", len(text)))
	return text, nil
}

func classify(err error) domain.FailKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.FailTimeout
	case errors.Is(err, port.ErrRefusal):
		return domain.FailRefusal
	default:
		return domain.FailTransport
	}
}

func digest(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:8])
}
