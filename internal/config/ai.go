package config

import "time"

// GeminiModels defines which Gemini models to use for different tasks
type GeminiModels struct {
	// Rephrase is for per-step question rephrasing (needs to be fast)
	Rephrase string `json:"rephrase" mapstructure:"rephrase"`

	// Closing is for the personalized closing message (quality matters, runs once per lead)
	Closing string `json:"closing" mapstructure:"closing"`
}

// AIConfig holds all AI-related configuration
type AIConfig struct {
	APIKey    string       `json:"-" mapstructure:"api_key"` // Never serialize
	BaseURL   string       `json:"baseUrl" mapstructure:"base_url"`
	Models    GeminiModels `json:"models" mapstructure:"models"`
	TimeoutMS int          `json:"timeoutMs" mapstructure:"timeout_ms"`
}

// DefaultAIConfig returns the default AI configuration
func DefaultAIConfig() AIConfig {
	return AIConfig{
		BaseURL: "https://generativelanguage.googleapis.com/v1beta/models",
		Models: GeminiModels{
			Rephrase: "gemini-2.0-flash",
			Closing:  "gemini-2.0-flash",
		},
		TimeoutMS: 10000,
	}
}

// IsEnabled returns true if the AI API is configured
func (c AIConfig) IsEnabled() bool {
	return c.APIKey != ""
}

// ModelEndpoint returns the full endpoint for a given model
func (c AIConfig) ModelEndpoint(model string) string {
	return c.BaseURL + "/" + model + ":generateContent"
}

// Timeout returns the HTTP client timeout
func (c AIConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
