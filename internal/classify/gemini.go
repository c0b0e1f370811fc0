package classify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/dkvirkvelia/bankledger/internal/ledger"
	"github.com/dkvirkvelia/bankledger/internal/taxonomy"
)

// Low temperature for consistent categorization; 8192 output tokens covers a
// full MaxBatchSize response with room to spare.
const (
	geminiTemperature     = 0.1
	geminiMaxOutputTokens = 8192
)

// GeminiClient classifies batches through the Gemini API. It is stateless
// between calls and safe for concurrent use.
type GeminiClient struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

// NewGeminiClient creates the client. The API key may be empty, in which
// case the SDK falls back to ambient credentials.
func NewGeminiClient(ctx context.Context, apiKey, model string, log zerolog.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{client: client, model: model, log: log}, nil
}

// Classify implements Client. The call is atomic: any failure yields zero
// assignments for the whole batch.
func (c *GeminiClient) Classify(ctx context.Context, batch []Summary, tax taxonomy.Set) (map[int64]ledger.Assignment, error) {
	if len(batch) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d records, cap is %d", ErrBatchTooLarge, len(batch), MaxBatchSize)
	}
	if len(batch) == 0 {
		return map[int64]ledger.Assignment{}, nil
	}

	prompt := BuildPrompt(tax, batch)

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](geminiTemperature),
		MaxOutputTokens: geminiMaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: generate content: %v", ErrServiceUnavailable, err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("%w: empty response from model", ErrBadResponse)
	}

	assignments, err := decodeAssignments(rawText, batch, tax)
	if err != nil {
		return nil, err
	}

	// A well-formed empty array for a non-empty batch is treated as zero
	// classified without an error, but it can also mean the service failed
	// silently, so make it visible.
	if len(assignments) == 0 {
		c.log.Warn().
			Int("batch_size", len(batch)).
			Msg("Model returned no assignments for a non-empty batch")
	}

	return assignments, nil
}

// Unavailable is a Client for deployments without classification
// credentials: every call fails as ErrServiceUnavailable, which surfaces as
// per-batch errors instead of taking the service down.
type Unavailable struct{}

// Classify implements Client.
func (Unavailable) Classify(context.Context, []Summary, taxonomy.Set) (map[int64]ledger.Assignment, error) {
	return nil, fmt.Errorf("%w: no API key configured", ErrServiceUnavailable)
}

var (
	_ Client = (*GeminiClient)(nil)
	_ Client = Unavailable{}
)
