package config

import "time"

// RuntimeConfig configures the Script Runtime's resource caps (spec.md
// §4.8, §5 "configurable resource limits").
type RuntimeConfig struct {
	ScriptTimeout  time.Duration `yaml:"script_timeout" json:"script_timeout"`
	MemoryLimitMB  int           `yaml:"memory_limit_mb" json:"memory_limit_mb"`
	StackSizeLimit int           `yaml:"stack_size_limit" json:"stack_size_limit"`
}

// WorkspaceConfig configures the Parallel Workspace Manager (spec.md §4.12).
type WorkspaceConfig struct {
	LockTimeout   time.Duration `yaml:"lock_timeout" json:"lock_timeout"`
	CommitRetries int           `yaml:"commit_retries" json:"commit_retries"`
}

// RoutingConfig names the model id bound to each of the Router's three
// difficulty tiers (spec.md §4.9). An empty string leaves that tier
// unregistered; the router falls back to whatever tiers are available.
type RoutingConfig struct {
	SmallModel    string `yaml:"small_model" json:"small_model"`
	StandardModel string `yaml:"standard_model" json:"standard_model"`
	LargeModel    string `yaml:"large_model" json:"large_model"`

	// LocalModel names the Ollama chat model --local routes every tier to.
	// Empty leaves providers.DefaultOllamaChatModel in effect.
	LocalModel string `yaml:"local_model" json:"local_model"`
}

// VerificationConfig configures the Self-Determining Executor's
// verification command timeout (spec.md §5).
type VerificationConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout" json:"default_timeout"`
}
