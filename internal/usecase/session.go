package usecase

import (
	"context"

	"prdgen/internal/domain"
	"prdgen/internal/gateway"
	"prdgen/internal/port"
	"prdgen/internal/retry"
)

// scopedAction builds the retry action for one query target under a session
// policy. Policies that keep conversational memory (PerModule, PerDomain)
// reuse the scope's session and send only the repair hint, since the failed
// exchange is already in the conversation. PerSubstep opens a fresh session
// per attempt and restates the full prompt with the hint appended.
func scopedAction(gw *gateway.Gateway, policy domain.SessionPolicy,
	scope, systemPrompt, prompt string, sess port.Session) retry.Action {

	if sess != nil && policy != domain.PerSubstep {
		return func(ctx context.Context, hint string) (string, error) {
			p := prompt
			if hint != "" {
				p = hint
			}
			return gw.Query(ctx, sess, p)
		}
	}

	return func(ctx context.Context, hint string) (string, error) {
		attempt, err := gw.Open(ctx, scope, systemPrompt)
		if err != nil {
			return "", err
		}
		defer attempt.Close()

		p := prompt
		if hint != "" {
			p = prompt + "\n\n" + hint
		}
		return gw.Query(ctx, attempt, p)
	}
}
