package anima

import (
	"errors"
	"fmt"
	"time"
)

// Default configuration values for the runtime.
// These mirror the hosted runtime's defaults and can be overridden
// per-session through Options.
const (
	DefaultMaxMemories         = 10
	DefaultMaxContextTokens    = 4000
	DefaultReflectionInterval  = 10
	DefaultConfidenceThreshold = 0.5
	DefaultCacheTTL            = 5 * time.Minute
	DefaultHistoryLimit        = 10
)

// Configuration errors returned by Options.resolve.
var (
	ErrMissingAgentID = errors.New("agent ID is required")
	ErrMissingBackend = errors.New("memory backend is required")
)

// Options configures a Session. The zero value is not usable directly;
// NewSession resolves Options into a validated Config, applying defaults
// for unset fields and failing fast on invalid combinations.
type Options struct {
	// AgentID identifies the agent whose memories and identity this
	// session operates on. Required.
	AgentID string

	// UserID identifies the user on whose behalf turns run. Optional;
	// forwarded to the backend as save metadata when set.
	UserID string

	// Backend is the memory service the session recalls from and saves
	// to. Required.
	Backend Backend

	// Provider is the LLM provider for turns and reflections. Optional;
	// when nil the session resolves a provider from context or the
	// global default at call time.
	Provider Provider

	// Model is the model name reported in chat metadata. Optional;
	// defaults to the provider's name when empty.
	Model string

	// Identity is the persona the session validates responses against.
	// Optional; a minimal identity is derived from AgentID when nil.
	Identity *Identity

	// MaxMemories bounds how many memories one context may contain.
	// Defaults to DefaultMaxMemories.
	MaxMemories int

	// MaxContextTokens bounds the estimated token size of the system
	// prompt. Defaults to DefaultMaxContextTokens.
	MaxContextTokens int

	// ReflectionInterval is the interaction count that triggers a
	// periodic reflection. Defaults to DefaultReflectionInterval.
	ReflectionInterval int

	// ConfidenceThreshold is the confidence below which a turn triggers
	// reflection. Defaults to DefaultConfidenceThreshold.
	ConfidenceThreshold float64

	// Tokens estimates token counts for context trimming. Defaults to
	// HeuristicTokenCounter.
	Tokens TokenCounter

	// AutoSave persists completed turns in the background. Defaults on;
	// set DisableAutoSave to turn off.
	DisableAutoSave bool

	// ValidateIdentity scans responses for persona violations. Defaults
	// on; set DisableValidation to turn off.
	DisableValidation bool

	// AutoCorrect rewrites detected violations in responses. Defaults
	// on; set DisableCorrection to report violations without rewriting.
	DisableCorrection bool

	// ContextOnly makes Chat return the composed prompt without calling
	// the LLM. Used for prompt inspection and dry runs.
	ContextOnly bool

	// CacheTTL is how long a built context may be served from cache for
	// the same query. Defaults to DefaultCacheTTL.
	CacheTTL time.Duration

	// DisableCache turns context caching off entirely.
	DisableCache bool

	// Analyzer supplies the text heuristics used by reflection. Defaults
	// to the pinned heuristic analyzer.
	Analyzer Analyzer
}

// Config is the resolved, immutable session configuration.
type Config struct {
	AgentID             string
	UserID              string
	Backend             Backend
	Provider            Provider
	Model               string
	Identity            *Identity
	MaxMemories         int
	MaxContextTokens    int
	ReflectionInterval  int
	ConfidenceThreshold float64
	Tokens              TokenCounter
	AutoSave            bool
	ValidateIdentity    bool
	AutoCorrect         bool
	ContextOnly         bool
	CacheTTL            time.Duration
	Analyzer            Analyzer
}

// resolve validates the options and produces a fully-populated Config.
func (o Options) resolve() (Config, error) {
	if o.AgentID == "" {
		return Config{}, ErrMissingAgentID
	}
	if o.Backend == nil {
		return Config{}, ErrMissingBackend
	}

	cfg := Config{
		AgentID:             o.AgentID,
		UserID:              o.UserID,
		Backend:             o.Backend,
		Provider:            o.Provider,
		Model:               o.Model,
		Identity:            o.Identity,
		MaxMemories:         o.MaxMemories,
		MaxContextTokens:    o.MaxContextTokens,
		ReflectionInterval:  o.ReflectionInterval,
		ConfidenceThreshold: o.ConfidenceThreshold,
		Tokens:              o.Tokens,
		AutoSave:            !o.DisableAutoSave,
		ValidateIdentity:    !o.DisableValidation,
		AutoCorrect:         !o.DisableCorrection,
		ContextOnly:         o.ContextOnly,
		CacheTTL:            o.CacheTTL,
		Analyzer:            o.Analyzer,
	}

	if cfg.MaxMemories == 0 {
		cfg.MaxMemories = DefaultMaxMemories
	}
	if cfg.MaxMemories < 0 {
		return Config{}, fmt.Errorf("max memories must be positive, got %d", cfg.MaxMemories)
	}
	if cfg.MaxContextTokens == 0 {
		cfg.MaxContextTokens = DefaultMaxContextTokens
	}
	if cfg.MaxContextTokens < 0 {
		return Config{}, fmt.Errorf("max context tokens must be positive, got %d", cfg.MaxContextTokens)
	}
	if cfg.ReflectionInterval == 0 {
		cfg.ReflectionInterval = DefaultReflectionInterval
	}
	if cfg.ReflectionInterval < 0 {
		return Config{}, fmt.Errorf("reflection interval must be positive, got %d", cfg.ReflectionInterval)
	}
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return Config{}, fmt.Errorf("confidence threshold must be in [0,1], got %v", cfg.ConfidenceThreshold)
	}
	if cfg.CacheTTL < 0 {
		return Config{}, fmt.Errorf("cache TTL must not be negative, got %v", cfg.CacheTTL)
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if o.DisableCache {
		cfg.CacheTTL = 0
	}
	if cfg.Tokens == nil {
		cfg.Tokens = HeuristicTokenCounter{}
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = NewHeuristicAnalyzer()
	}
	if cfg.Identity == nil {
		cfg.Identity = DefaultIdentity(cfg.AgentID)
	}
	if cfg.Model == "" && cfg.Provider != nil {
		cfg.Model = cfg.Provider.Name()
	}

	return cfg, nil
}
