package config

// ProviderConfig defines an AI provider transport. Providers are separate
// from agents -- all five role agents can share one provider while the
// reviewer uses another.
type ProviderConfig struct {
	Type           string `json:"type"`               // "grok" or "claude"
	BaseURL        string `json:"base_url,omitempty"` // override, empty uses the provider default
	Model          string `json:"model,omitempty"`    // default model for this provider
	APIKeyEnv      string `json:"api_key_env"`        // environment variable holding the key
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// AgentConfig binds a business role to a provider and model.
type AgentConfig struct {
	Provider string `json:"provider"`        // Key into Providers map
	Model    string `json:"model,omitempty"` // Model override
}

// RetryConfig shapes the backoff between failed attempts.
type RetryConfig struct {
	InitialMillis       int     `json:"initial_millis,omitempty"`
	MaxMillis           int     `json:"max_millis,omitempty"`
	Multiplier          float64 `json:"multiplier,omitempty"`
	RandomizationFactor float64 `json:"randomization_factor,omitempty"`
}

// ApprovalConfig is the human-in-loop policy boundary.
type ApprovalConfig struct {
	MaxAutoAmount float64 `json:"max_auto_amount"` // largest effect dispatched without review
	SLAMinutes    int     `json:"sla_minutes"`     // how long a decision may stay open
}

// PipelineConfig bounds the worker pool and retry behavior.
type PipelineConfig struct {
	Workers            int              `json:"workers,omitempty"`
	RoleLimits         map[string]int64 `json:"role_limits,omitempty"`
	CallTimeoutSeconds int              `json:"call_timeout_seconds,omitempty"`
	MaxAttempts        int              `json:"max_attempts,omitempty"`
	TickMillis         int              `json:"tick_millis,omitempty"`
	Retry              RetryConfig      `json:"retry,omitempty"`
}

// ScheduleConfig describes one recurring task emission. An empty Schedules
// list means the built-in default cadences.
type ScheduleConfig struct {
	Name         string            `json:"name"`
	Role         string            `json:"role"`
	Cadence      string            `json:"cadence"` // "interval" or "daily"
	EveryMinutes int               `json:"every_minutes,omitempty"`
	AtHour       int               `json:"at_hour,omitempty"`
	AtMinute     int               `json:"at_minute,omitempty"`
	Priority     string            `json:"priority,omitempty"`
	Payload      map[string]string `json:"payload,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	Listen       string                    `json:"listen"`
	DatabasePath string                    `json:"database_path"`
	Providers    map[string]ProviderConfig `json:"providers"`
	Agents       map[string]AgentConfig    `json:"agents"`
	Reviewer     AgentConfig               `json:"reviewer"`
	Pipeline     PipelineConfig            `json:"pipeline"`
	Approval     ApprovalConfig            `json:"approval"`
	Webhooks     map[string]string         `json:"webhooks,omitempty"` // channel name -> URL
	Schedules    []ScheduleConfig          `json:"schedules,omitempty"`
}
