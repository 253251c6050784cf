package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/phrazzld/tributary-api/internal/config"
	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/phrazzld/tributary-api/internal/generation"
	"google.golang.org/genai"
)

// Common errors specific to the Gemini generator
var (
	ErrNilTemplate = errors.New("prompt template cannot be nil")
	ErrEmptyTopic  = errors.New("topic cannot be empty")
)

// promptScaffold wraps the stored template body with the output-format
// instructions the parser depends on.
const promptScaffold = `{{.TemplateBody}}

Topic: {{.Topic}}
{{- if .Tier}}
Tier: {{.Tier}}
{{- end}}
{{- range $key, $value := .Parameters}}
{{$key}}: {{$value}}
{{- end}}

Respond with a single JSON object of the form
{"title": string, "turns": [{"role": "user"|"assistant", "content": string}, ...]}
and nothing else.`

// GeminiGenerator implements the generation.Generator interface using
// Google's Gemini API to generate training conversations.
type GeminiGenerator struct {
	// logger is used for structured logging
	logger *slog.Logger

	// config contains LLM-specific configuration
	config config.LLMConfig

	// promptTemplate is the parsed scaffold for creating prompts
	promptTemplate *template.Template

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string
}

// NewGeminiGenerator creates a new instance of GeminiGenerator with the
// provided dependencies. Returns an error if the configuration is invalid
// or the client cannot be constructed.
func NewGeminiGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	promptTemplate, err := template.New("conversation").Parse(promptScaffold)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt scaffold: %v",
			generation.ErrInvalidConfig, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &GeminiGenerator{
		logger:         logger,
		config:         cfg,
		promptTemplate: promptTemplate,
		client:         client,
		model:          cfg.ModelName,
	}, nil
}

// GenerateConversation produces a single conversation for the request.
// The API call is bounded by the configured request timeout and retried a
// bounded number of times for transient failures only.
func (g *GeminiGenerator) GenerateConversation(
	ctx context.Context,
	req generation.Request,
) (*domain.Conversation, error) {
	prompt, err := g.createPrompt(ctx, req)
	if err != nil {
		return nil, err
	}

	var parsed *responseSchema

	err = retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(
				ctx,
				time.Duration(g.config.RequestTimeoutSeconds)*time.Second,
			)
			defer cancel()

			result, callErr := g.callGemini(callCtx, prompt)
			if callErr != nil {
				return callErr
			}
			parsed = result
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(g.config.MaxRetries)+1),
		retry.Delay(2*time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// Blocked content and malformed responses will not improve on retry.
			return !errors.Is(err, generation.ErrContentBlocked) &&
				!errors.Is(err, generation.ErrInvalidResponse)
		}),
		retry.OnRetry(func(attempt uint, err error) {
			g.logger.WarnContext(ctx, "retrying Gemini API call",
				"attempt", attempt+1,
				"error", err)
		}),
	)
	if err != nil {
		if errors.Is(err, generation.ErrContentBlocked) || errors.Is(err, generation.ErrInvalidResponse) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	turns := make([]domain.Turn, 0, len(parsed.Turns))
	for _, t := range parsed.Turns {
		turns = append(turns, domain.Turn{Role: t.Role, Content: t.Content})
	}

	title := parsed.Title
	if title == "" {
		title = req.Topic
	}

	conv, err := domain.NewConversation(req.UserID, title, req.Tier, turns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}

	g.logger.InfoContext(ctx, "conversation generated",
		"conversation_id", conv.ID,
		"turn_count", len(conv.Turns),
		"run_id", req.RunID)

	return conv, nil
}

// createPrompt renders the prompt scaffold with the request data.
func (g *GeminiGenerator) createPrompt(ctx context.Context, req generation.Request) (string, error) {
	if req.Template == nil {
		return "", ErrNilTemplate
	}

	if req.Topic == "" {
		return "", ErrEmptyTopic
	}

	data := promptData{
		TemplateBody: req.Template.Body,
		Topic:        req.Topic,
		Tier:         req.Tier,
		Parameters:   req.Parameters,
	}

	var promptBuffer bytes.Buffer
	if err := g.promptTemplate.Execute(&promptBuffer, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	g.logger.DebugContext(ctx, "prompt rendered",
		"prompt_length", promptBuffer.Len(),
		"template_id", req.Template.ID)

	return promptBuffer.String(), nil
}

// callGemini makes a single call to the Gemini API and parses the response.
func (g *GeminiGenerator) callGemini(ctx context.Context, prompt string) (*responseSchema, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		// API-level failures are treated as transient; the retry policy
		// decides how many attempts they get.
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: finish reason safety", generation.ErrContentBlocked)
	}

	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var text string
	for _, part := range candidate.Content.Parts {
		text += part.Text
	}

	var parsed responseSchema
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", generation.ErrInvalidResponse, err)
	}

	if len(parsed.Turns) == 0 {
		return nil, fmt.Errorf("%w: response contained no turns", generation.ErrInvalidResponse)
	}

	return &parsed, nil
}
