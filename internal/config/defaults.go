package config

// DefaultConfig returns the default configuration: Grok proposes for every
// role, Claude reviews, five-figure effects and hot tasks go to a human.
func DefaultConfig() *Config {
	return &Config{
		Listen:       ":8080",
		DatabasePath: "data/armour.db",
		Providers: map[string]ProviderConfig{
			"grok": {
				Type:           "grok",
				APIKeyEnv:      "XAI_API_KEY",
				TimeoutSeconds: 60,
			},
			"claude": {
				Type:           "claude",
				APIKeyEnv:      "ANTHROPIC_API_KEY",
				TimeoutSeconds: 60,
			},
		},
		Agents: map[string]AgentConfig{
			"sales":      {Provider: "grok"},
			"finance":    {Provider: "grok"},
			"logistics":  {Provider: "grok"},
			"contractor": {Provider: "grok"},
			"support":    {Provider: "grok"},
		},
		Reviewer: AgentConfig{Provider: "claude"},
		Pipeline: PipelineConfig{
			Workers:            8,
			CallTimeoutSeconds: 60,
			MaxAttempts:        3,
			TickMillis:         1000,
			RoleLimits: map[string]int64{
				"sales":      2,
				"finance":    2,
				"logistics":  2,
				"contractor": 2,
				"support":    2,
			},
			Retry: RetryConfig{
				InitialMillis:       1000,
				MaxMillis:           30000,
				Multiplier:          2.0,
				RandomizationFactor: 0.5,
			},
		},
		Approval: ApprovalConfig{
			MaxAutoAmount: 10_000,
			SLAMinutes:    240,
		},
		Webhooks: map[string]string{},
	}
}
