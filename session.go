package anima

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/zyn"
)

// Turn is one completed user/assistant exchange. Importance, when set,
// is used as the persisted score verbatim; when nil the saver estimates
// one from the turn content.
type Turn struct {
	UserMessage       string
	AssistantResponse string
	Timestamp         time.Time
	Importance        *float64
}

// ChatMetadata describes how a response was produced.
type ChatMetadata struct {
	Provider          string
	Model             string
	ContextLoaded     bool
	IdentityValidated bool
	AutoSaved         bool
	TokensUsed        int
}

// ChatResponse is the result of one turn.
type ChatResponse struct {
	Content  string
	Metadata ChatMetadata
}

// ErrSessionClosed is returned by operations on a shut-down session.
var ErrSessionClosed = fmt.Errorf("session is closed")

// Session is a stateful conversation with one agent. Each Chat call
// runs the full turn pipeline: await the previous turn's save, weave
// memory context, call the LLM, validate identity, enqueue
// persistence, and evaluate reflection triggers.
//
// Turns are serialized; concurrent Chat calls queue on an internal
// mutex. Reflections run in supervised background goroutines that
// Shutdown waits for.
type Session struct {
	cfg       Config
	weaver    *Weaver
	validator *Validator
	reflector *Reflector
	saver     *Saver

	mu          sync.Mutex
	identity    *Identity
	history     *zyn.Session
	pendingTurn *Turn
	closed      bool

	reflectWG     sync.WaitGroup
	reflectCtx    context.Context
	reflectCancel context.CancelFunc
}

// NewSession resolves options into a configured session and announces
// the agent to the backend. Registration is best-effort: a failure is
// signaled and the session proceeds.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	cfg, err := opts.resolve()
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	weaver := NewWeaver(cfg.Backend, cfg.Identity).
		WithMaxMemories(cfg.MaxMemories).
		WithMaxTokens(cfg.MaxContextTokens).
		WithCacheTTL(cfg.CacheTTL)
	if cfg.Tokens != nil {
		weaver = weaver.WithTokenCounter(cfg.Tokens)
	}

	reflector := NewReflector(cfg.AgentID, cfg.Backend, cfg.Analyzer).
		WithInterval(cfg.ReflectionInterval).
		WithThreshold(cfg.ConfidenceThreshold)
	if cfg.Provider != nil {
		reflector = reflector.WithProvider(cfg.Provider)
	}

	reflectCtx, reflectCancel := context.WithCancel(context.Background())

	s := &Session{
		cfg:           cfg,
		weaver:        weaver,
		reflector:     reflector,
		identity:      cfg.Identity,
		history:       zyn.NewSession(),
		reflectCtx:    reflectCtx,
		reflectCancel: reflectCancel,
	}
	if cfg.ValidateIdentity {
		s.validator = NewValidator(cfg.Identity, cfg.AutoCorrect)
	}
	if cfg.AutoSave {
		s.saver = NewSaver(cfg.AgentID, cfg.Backend)
	}

	if registrar, ok := cfg.Backend.(Registrar); ok {
		if err := registrar.Register(ctx, cfg.AgentID, cfg.Identity.Name, cfg.Identity.Purpose); err != nil {
			capitan.Error(ctx, RegisterFailed,
				FieldAgentID.Field(cfg.AgentID),
				FieldError.Field(err),
			)
		}
	}

	capitan.Emit(ctx, SessionStarted,
		FieldAgentID.Field(cfg.AgentID),
		FieldUserID.Field(cfg.UserID),
	)
	return s, nil
}

// Chat runs one conversation turn. The previous turn, pending since
// the end of the last call, is persisted first; if that save fails,
// Chat returns the error before any new work — the conversation does
// not continue past lost memory.
func (s *Session) Chat(ctx context.Context, message string) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	start := time.Now()
	capitan.Emit(ctx, TurnStarted,
		FieldAgentID.Field(s.cfg.AgentID),
		FieldQuery.Field(message),
	)

	if s.saver != nil && s.pendingTurn != nil {
		if saveErr := <-s.saver.Save(ctx, *s.pendingTurn); saveErr != nil {
			capitan.Error(ctx, TurnFailed,
				FieldAgentID.Field(s.cfg.AgentID),
				FieldError.Field(saveErr),
			)
			return nil, fmt.Errorf("previous turn was not saved: %w", saveErr)
		}
		s.pendingTurn = nil
	}

	woven, err := s.weaver.BuildContext(ctx, message, BuildOptions{})
	if err != nil {
		capitan.Error(ctx, TurnFailed,
			FieldAgentID.Field(s.cfg.AgentID),
			FieldError.Field(err),
		)
		return nil, fmt.Errorf("context build failed: %w", err)
	}

	if s.cfg.ContextOnly {
		return &ChatResponse{
			Content: woven.SystemPrompt,
			Metadata: ChatMetadata{
				Provider:      "none",
				ContextLoaded: true,
			},
		}, nil
	}

	provider, err := ResolveProvider(ctx, s.cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	messages := make([]zyn.Message, 0, s.history.Len()+2)
	messages = append(messages, zyn.Message{Role: "system", Content: woven.SystemPrompt})
	messages = append(messages, s.history.Messages()...)
	messages = append(messages, zyn.Message{Role: "user", Content: message})

	resp, err := provider.Call(ctx, messages, zyn.DefaultTemperatureDeterministic)
	if err != nil {
		capitan.Error(ctx, TurnFailed,
			FieldAgentID.Field(s.cfg.AgentID),
			FieldProvider.Field(provider.Name()),
			FieldError.Field(err),
		)
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}

	content := resp.Content
	validated := false
	if s.validator != nil {
		result := s.validator.Validate(ctx, content)
		validated = true
		if result.CorrectedResponse != "" {
			content = result.CorrectedResponse
		}
	}

	turn := Turn{
		UserMessage:       message,
		AssistantResponse: content,
		Timestamp:         time.Now(),
	}

	// The completed turn becomes pending; it is persisted at the start
	// of the next turn, or at Shutdown.
	s.pendingTurn = &turn
	saved := s.saver != nil
	s.reflector.RecordTurn(turn)

	s.history.Append("user", message)
	s.history.Append("assistant", content)
	s.trimHistory()

	if decision := s.reflector.ShouldReflect(ReflectSignals{}); decision.ShouldReflect {
		capitan.Emit(ctx, ReflectionTriggered,
			FieldAgentID.Field(s.cfg.AgentID),
			FieldTrigger.Field(string(decision.Trigger)),
		)
		s.reflectWG.Add(1)
		go func(trigger TriggerCondition) {
			defer s.reflectWG.Done()
			_, _ = s.reflector.Reflect(s.reflectCtx, trigger)
		}(decision.Trigger)
	}

	model := s.cfg.Model
	if model == "" {
		model = provider.Name()
	}

	capitan.Emit(ctx, TurnCompleted,
		FieldAgentID.Field(s.cfg.AgentID),
		FieldProvider.Field(provider.Name()),
		FieldTokensUsed.Field(resp.Usage.Total),
		FieldDuration.Field(time.Since(start)),
	)

	return &ChatResponse{
		Content: content,
		Metadata: ChatMetadata{
			Provider:          provider.Name(),
			Model:             model,
			ContextLoaded:     true,
			IdentityValidated: validated,
			AutoSaved:         saved,
			TokensUsed:        resp.Usage.Total,
		},
	}, nil
}

// Context returns the context woven for the most recent turn, or nil
// before the first turn.
func (s *Session) Context() *Context {
	return s.weaver.LastContext()
}

// Identity returns the session's current identity.
func (s *Session) Identity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// UpdateIdentity applies a partial identity update. The context cache
// is invalidated and the validator rebound so the change takes effect
// on the next turn.
func (s *Session) UpdateIdentity(update IdentityUpdate) *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = s.identity.Update(update)
	s.weaver.SetIdentity(s.identity)
	if s.validator != nil {
		s.validator = NewValidator(s.identity, s.cfg.AutoCorrect)
	}
	return s.identity
}

// History returns the retained turns, oldest first.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.history.Messages()
	var turns []Turn
	for i := 0; i+1 < len(msgs); i += 2 {
		turns = append(turns, Turn{
			UserMessage:       msgs[i].Content,
			AssistantResponse: msgs[i+1].Content,
		})
	}
	return turns
}

// ClearHistory drops the conversation history. Persisted memories are
// unaffected.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Clear()
}

// RefreshContext rebuilds the memory context, bypassing the cache.
func (s *Session) RefreshContext(ctx context.Context, query string) (*Context, error) {
	return s.weaver.BuildContext(ctx, query, BuildOptions{Refresh: true})
}

// ValidationStats reports lifetime violation counts. Zero-valued when
// validation is disabled.
func (s *Session) ValidationStats() ValidationStats {
	if s.validator == nil {
		return ValidationStats{}
	}
	return s.validator.Stats()
}

// TriggerReflection runs a reflection immediately, regardless of
// trigger state.
func (s *Session) TriggerReflection(ctx context.Context) (*Reflection, error) {
	return s.reflector.Reflect(ctx, TriggerManual)
}

// Reflections returns the session's reflection history, oldest first.
func (s *Session) Reflections() []Reflection {
	return s.reflector.History()
}

// Explain produces a reasoning trace for a query over the given
// memories.
func (s *Session) Explain(ctx context.Context, query string, memories []Memory) (*ReasoningTrace, error) {
	return s.reflector.Explain(ctx, query, memories)
}

// Shutdown persists the pending turn, drains queued saves, then waits
// for in-flight reflections. If ctx expires while waiting, running
// reflections are canceled and Shutdown returns after they exit.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.pendingTurn
	s.pendingTurn = nil
	s.mu.Unlock()

	var saveErr error
	if s.saver != nil {
		if pending != nil {
			if err := <-s.saver.Save(ctx, *pending); err != nil {
				saveErr = err
			}
		}
		if err := s.saver.Flush(ctx); err != nil && saveErr == nil {
			saveErr = err
		}
		s.saver.Close()
	}

	waited := make(chan struct{})
	go func() {
		s.reflectWG.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		s.reflectCancel()
		<-waited
	}
	s.reflectCancel()

	capitan.Emit(ctx, SessionClosed,
		FieldAgentID.Field(s.cfg.AgentID),
	)
	return saveErr
}

// trimHistory caps retained history to the configured turn limit.
func (s *Session) trimHistory() {
	limit := 2 * DefaultHistoryLimit
	if s.history.Len() > limit {
		msgs := s.history.Messages()
		s.history.SetMessages(msgs[len(msgs)-limit:])
	}
}
