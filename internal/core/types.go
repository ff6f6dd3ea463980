package core

// Provider identifiers for the supported upstream services.
const (
	// ProviderGoogle is the managed Google Generative Language API.
	ProviderGoogle = "google"
	// ProviderLiteLLM is an OpenAI-compatible LiteLLM aggregation gateway.
	ProviderLiteLLM = "litellm"
)

// SupportedProviders returns the fixed set of provider identifiers, in
// stable order.
func SupportedProviders() []string {
	return []string{ProviderGoogle, ProviderLiteLLM}
}

// SupportedProvider reports whether the identifier names a known provider.
// Callers must reject unknown identifiers before any network call is made.
func SupportedProvider(provider string) bool {
	switch provider {
	case ProviderGoogle, ProviderLiteLLM:
		return true
	}
	return false
}

// Message roles accepted in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationRequest carries everything an adapter needs to open one
// streaming generation session. It is built per request and discarded when
// the stream completes or fails; it is never shared across requests.
type GenerationRequest struct {
	Model       string
	Temperature float64
	MaxTokens   *int
	// Messages is the full ordered context: prior turns followed by the
	// current user turn. Order is chronological and must be preserved.
	Messages []Message
	// Credential authorizes the upstream call. Never logged.
	Credential string
}
