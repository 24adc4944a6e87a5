package llm

import (
	"context"
	"fmt"
	"sync"

	"prdgen/internal/port"
)

// Scripted is a port.LLM for tests and offline dry runs: each session pops
// canned responses from a per-scope script and records every prompt it saw.
// A Respond function, when set, takes precedence over the static script so
// tests can answer based on prompt content.
type Scripted struct {
	mu      sync.Mutex
	scripts map[string][]string
	errs    map[string]error

	// Respond, if non-nil, computes the reply for (sessionID, prompt, call#).
	Respond func(sessionID, prompt string, call int) (string, error)

	Prompts []ScriptedPrompt
}

// ScriptedPrompt is one observed Send call.
type ScriptedPrompt struct {
	SessionID string
	Prompt    string
}

func NewScripted() *Scripted {
	return &Scripted{
		scripts: make(map[string][]string),
		errs:    make(map[string]error),
	}
}

// Script queues responses for sessions whose id matches exactly.
func (s *Scripted) Script(sessionID string, responses ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[sessionID] = append(s.scripts[sessionID], responses...)
}

// Fail makes every Send on the session return err.
func (s *Scripted) Fail(sessionID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[sessionID] = err
}

func (s *Scripted) ModelName() string { return "scripted" }

func (s *Scripted) Open(_ context.Context, id, _ string) (port.Session, error) {
	return &scriptedSession{id: id, parent: s}, nil
}

// CallCount returns how many prompts the session has received.
func (s *Scripted) CallCount(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.Prompts {
		if p.SessionID == sessionID {
			n++
		}
	}
	return n
}

type scriptedSession struct {
	id     string
	parent *Scripted
	calls  int
}

func (s *scriptedSession) ID() string { return s.id }

func (s *scriptedSession) Send(_ context.Context, prompt string) (string, error) {
	p := s.parent
	p.mu.Lock()
	p.Prompts = append(p.Prompts, ScriptedPrompt{SessionID: s.id, Prompt: prompt})
	call := s.calls
	s.calls++

	if err, ok := p.errs[s.id]; ok {
		p.mu.Unlock()
		return "", err
	}

	if p.Respond != nil {
		p.mu.Unlock()
		return p.Respond(s.id, prompt, call)
	}

	queue := p.scripts[s.id]
	if len(queue) == 0 {
		p.mu.Unlock()
		return "", fmt.Errorf("scripted llm: no response queued for session %q", s.id)
	}
	next := queue[0]
	p.scripts[s.id] = queue[1:]
	p.mu.Unlock()
	return next, nil
}

func (s *scriptedSession) Close() error { return nil }
