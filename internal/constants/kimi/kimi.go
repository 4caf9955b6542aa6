package kimi

import "time"

// APIKeyVar is the environment variable holding the bearer token for the
// NVIDIA integrate API.
const APIKeyVar = "NVIDIA_API_KEY_KIMI"

const (
	DefaultEndpoint = "https://integrate.api.nvidia.com/v1/chat/completions"
	DefaultModel    = "moonshotai/kimi-k2.5"
	DefaultPrompt   = "Hello"
)

// Generation defaults mirror the parameters the integrate API playground uses
// for this model.
const (
	DefaultMaxTokens   = 16384
	DefaultTemperature = 1.0
	DefaultTopP        = 1.0
)

const DefaultTimeout = 30 * time.Second
