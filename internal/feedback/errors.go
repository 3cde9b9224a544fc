package feedback

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProviderUnresolved means the requested provider name is not one of
	// the supported backends.
	ErrProviderUnresolved = errors.New("provider not recognized")
	// ErrProviderUnavailable means the provider exists but is unreachable or
	// missing configuration such as an API key.
	ErrProviderUnavailable = errors.New("provider not available")
)

// FailureKind buckets a provider error for user-facing remediation.
type FailureKind string

const (
	FailureAuth    FailureKind = "auth"
	FailureQuota   FailureKind = "quota"
	FailureNetwork FailureKind = "network"
	FailurePolicy  FailureKind = "policy"
	FailureParse   FailureKind = "parse"
	FailureUnknown FailureKind = "unknown"
)

var failureSignatures = []struct {
	kind    FailureKind
	phrases []string
}{
	{FailureAuth, []string{"401", "invalid_api_key", "incorrect api key", "unauthorized", "authentication"}},
	{FailureQuota, []string{"429", "quota", "rate limit", "insufficient_quota"}},
	{FailureNetwork, []string{"connection", "timeout", "network", "unreachable"}},
	{FailurePolicy, []string{"404", "data policy", "no endpoints found", "privacy"}},
}

// Classify inspects an error's message and assigns a failure kind. Provider
// SDKs surface backend failures as formatted message strings rather than
// typed errors, so matching on known phrases is the stable signal.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return FailureParse
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range failureSignatures {
		for _, phrase := range sig.phrases {
			if strings.Contains(msg, phrase) {
				return sig.kind
			}
		}
	}
	return FailureUnknown
}

// providerDisplay maps IDs to user-facing names.
var providerDisplay = map[ProviderID]string{
	ProviderOllama:     "Ollama",
	ProviderOpenAI:     "OpenAI",
	ProviderAnthropic:  "Anthropic",
	ProviderOpenRouter: "OpenRouter",
}

// RemediationMessage builds a user-facing explanation for a classified
// failure, with provider-specific next steps.
func RemediationMessage(id ProviderID, kind FailureKind) string {
	name := providerDisplay[id]
	if name == "" {
		name = string(id)
	}

	switch kind {
	case FailureAuth:
		if id == ProviderOllama {
			return fmt.Sprintf("%s rejected the request. Local Ollama servers do not normally require credentials; check OLLAMA_HOST and any proxy in front of it.", name)
		}
		return fmt.Sprintf("%s API key is missing or invalid. Create a key in the %s console and set it in the llm.%s.api_key setting, then try again.", name, name, id)
	case FailureQuota:
		return fmt.Sprintf("%s usage quota or rate limit exceeded. Check your usage dashboard, add credits if needed, or wait a few minutes before retrying. Switching to Ollama (local, free) avoids quotas entirely.", name)
	case FailureNetwork:
		if id == ProviderOllama {
			return "Could not reach the Ollama server. Start it with \"ollama serve\" and confirm the base URL in llm.ollama.base_url."
		}
		return fmt.Sprintf("Could not reach the %s API. Check your internet connection and any proxy or firewall, then retry.", name)
	case FailurePolicy:
		return fmt.Sprintf("%s declined the request for the selected model. The model may require a data-policy opt-in or may not be served anymore; pick a different model in settings.", name)
	case FailureParse:
		return fmt.Sprintf("%s returned a response that could not be read as organized feedback. Retrying usually resolves it; if not, try a stronger model.", name)
	default:
		return fmt.Sprintf("%s request failed. See the log for the underlying error.", name)
	}
}
