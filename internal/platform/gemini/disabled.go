package gemini

import "context"

// DisabledClient satisfies the generation and embedding interfaces for
// deployments without an API key. Every call fails with ErrMissingAPIKey,
// which surfaces as a terminal run error on transform and embed columns.
type DisabledClient struct{}

// Disabled returns the no-op client.
func Disabled() *DisabledClient {
	return &DisabledClient{}
}

// GenerateText always fails.
func (*DisabledClient) GenerateText(context.Context, string, string) (string, error) {
	return "", ErrMissingAPIKey
}

// EmbedText always fails.
func (*DisabledClient) EmbedText(context.Context, string, string) ([]float32, error) {
	return nil, ErrMissingAPIKey
}
