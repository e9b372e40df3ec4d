package session

// Default values for Config.
const (
	DefaultMaxSteps      = 20
	DefaultLoopThreshold = 3
	DefaultTokenBudget   = 0 // 0 means unlimited.
)

// Config controls one conversation.
type Config struct {
	// ID names the session in the event log and audit trail. Empty means
	// a fresh ULID.
	ID string `yaml:"-"`

	// SystemPrompt is sent ahead of the history. Empty means
	// DefaultSystemPrompt.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxSteps bounds the model round-trips of one turn.
	MaxSteps int `yaml:"max_steps"`

	// LoopThreshold is how many times the same tool call (name + args)
	// may repeat within a turn before the turn is stopped.
	LoopThreshold int `yaml:"loop_threshold"`

	// TokenBudget is the cumulative token limit of one turn. Zero means
	// unlimited.
	TokenBudget int `yaml:"token_budget"`
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.LoopThreshold <= 0 {
		c.LoopThreshold = DefaultLoopThreshold
	}
	return c
}
