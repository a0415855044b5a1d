package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/eda-agent/backend/internal/dataset"
	"github.com/eda-agent/backend/internal/intent"
	"github.com/eda-agent/backend/pkg/circuitbreaker"
	"github.com/eda-agent/backend/pkg/logger"
	"github.com/eda-agent/backend/pkg/retry"
)

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(apiKey, model string, temperature float32, maxTokens, timeoutSec int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	if timeoutSec <= 0 {
		timeoutSec = 30
	}

	logger.Info("LLM client initialized", zap.String("model", model))

	return &Client{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     time.Duration(timeoutSec) * time.Second,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

const extractSystemPrompt = `You are a data analysis assistant. Classify a question about a tabular dataset into a structured intent.

Intent kinds:
- metric: the question asks for a single statistic of the dataset or of one column
- plot: the question asks for a chart
- explanation: anything else (summaries, comparisons, open questions)

Metrics: mean, median, min, max, std, variance, count, missing, class_rate
Plot kinds: histogram, time_series, corr_heatmap, box_by_class, scatter_pca

Return ONLY a JSON object:
{"kind": "metric|plot|explanation", "metric": "...", "plot_kind": "...", "columns": ["..."], "log_scale": false}

Columns must be copied verbatim from the provided column list. Omit fields that do not apply.`

// Extract asks the model for a structured intent. Errors (and unusable
// answers) surface to the caller, which falls back to the rule extractor.
func (c *Client) Extract(ctx context.Context, question string, schema *dataset.Schema) (intent.Intent, error) {
	names := make([]string, len(schema.Columns))
	for i, col := range schema.Columns {
		names[i] = fmt.Sprintf("%s (%s)", col.Name, col.Type)
	}

	userPrompt := fmt.Sprintf("Columns: %s\n\nQuestion: %s\n\nReturn JSON only.",
		strings.Join(names, ", "), question)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: extractSystemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.1,
		MaxTokens:    200,
	})
	if err != nil {
		return intent.Intent{}, fmt.Errorf("failed to extract intent: %w", err)
	}

	parsed, err := parseIntent(resp.Content)
	if err != nil {
		return intent.Intent{}, err
	}

	// Keep only columns that exist, verbatim.
	valid := parsed.Columns[:0]
	for _, name := range parsed.Columns {
		if _, ok := schema.Column(name); ok {
			valid = append(valid, name)
		}
	}
	parsed.Columns = valid

	logger.Debug("Intent extracted",
		zap.String("kind", string(parsed.Kind)),
		zap.String("metric", parsed.Metric),
		zap.String("plot_kind", parsed.PlotKind),
	)
	return parsed, nil
}

// ComposeAnswer turns computed facts into a short natural-language answer.
// The model never sees raw data, only the fact lines the dispatcher built.
func (c *Client) ComposeAnswer(ctx context.Context, question string, facts []string) (string, error) {
	systemPrompt := `You are a data analysis assistant. Answer the user's question using ONLY the provided facts.
Do not invent numbers. Be concise: one to three sentences.`

	userPrompt := fmt.Sprintf("Question: %s\n\nFacts:\n%s", question, strings.Join(facts, "\n"))

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.3,
		MaxTokens:    300,
	})
	if err != nil {
		return "", fmt.Errorf("failed to compose answer: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

func parseIntent(content string) (intent.Intent, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return intent.Intent{}, fmt.Errorf("no JSON object in model response")
	}

	var out intent.Intent
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return intent.Intent{}, fmt.Errorf("failed to parse intent JSON: %w", err)
	}

	switch out.Kind {
	case intent.KindMetric, intent.KindPlot, intent.KindExplanation:
	default:
		return intent.Intent{}, fmt.Errorf("unknown intent kind %q", out.Kind)
	}
	return out, nil
}
