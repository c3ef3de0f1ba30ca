// Package summary writes the human readable verdict for an analysis.
//
// [Templates] picks one of a few fixed texts. [OpenAI] asks a chat model to
// write the summary and falls back to a [Summarizer] of choice when the call
// fails or returns nothing.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Summarizer produces a summary for a fake percentage in [0, 100].
type Summarizer interface {
	Summarize(ctx context.Context, fakePct float64) (string, error)
}

var templates = []string{
	"The audio shows a fake probability of %.2f%%. " +
		"Spectral analysis detected reduced pitch variation, smooth frequency " +
		"transitions, and abnormal consistency. These characteristics are " +
		"commonly associated with AI-generated or voice-converted speech.",

	"Analysis estimates that %.2f%% of the audio aligns with " +
		"synthetic voice patterns. Controlled harmonic structure and limited " +
		"temporal randomness were observed, which are uncommon in natural speech.",

	"The system predicts a %.2f%% likelihood of artificial " +
		"generation. Frame-level spectral behavior shows uniformity and " +
		"synthetic artifacts consistent with modern neural TTS systems.",
}

// Templates chooses one of the built-in texts at random.
type Templates struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewTemplates creates a template summarizer. A nil rng seeds one from the
// runtime.
func NewTemplates(rng *rand.Rand) *Templates {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Templates{rng: rng}
}

func (t *Templates) Summarize(_ context.Context, fakePct float64) (string, error) {
	t.mu.Lock()
	i := t.rng.IntN(len(templates))
	t.mu.Unlock()
	return fmt.Sprintf(templates[i], fakePct), nil
}

const systemPrompt = "You are an audio forensics assistant. Write a short, " +
	"neutral summary (two or three sentences) of a synthetic speech detection " +
	"result for a non-technical reader. Always state the percentage with two decimals."

// OpenAIConfig configures the chat completion summarizer.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// MaxRetries of zero keeps the client default.
	MaxRetries int
}

// OpenAI writes summaries with a chat completion model.
type OpenAI struct {
	client   openai.Client
	model    string
	fallback Summarizer
}

// NewOpenAI creates a chat model summarizer. fallback is used when the
// request fails.
func NewOpenAI(cfg OpenAIConfig, fallback Summarizer) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAI{client: openai.NewClient(opts...), model: model, fallback: fallback}
}

func (o *OpenAI) Summarize(ctx context.Context, fakePct float64) (string, error) {
	text, err := o.complete(ctx, fakePct)
	if err == nil {
		return text, nil
	}
	if o.fallback == nil {
		return "", err
	}
	slog.WarnContext(ctx, "summary model failed, using fallback", "err", err)
	return o.fallback.Summarize(ctx, fakePct)
}

func (o *OpenAI) complete(ctx context.Context, fakePct float64) (string, error) {
	prompt := fmt.Sprintf("A voice clip was analysed. The estimated probability that it is "+
		"AI-generated or voice-converted is %.2f%%. Summarise this result.", fakePct)
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summary: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summary: chat completion returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("summary: chat completion returned empty text")
	}
	return text, nil
}
