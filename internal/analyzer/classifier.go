package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ClassifierOptions configures the OpenAI-compatible classification endpoint.
type ClassifierOptions struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Classifier asks an external language model for a two-boolean verdict.
//
// The reply is parsed in two tiers: a strict JSON decode, then a case-insensitive
// substring scan of the raw text. Any transport or upstream failure yields a
// verdict with both flags false.
type Classifier struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	model      string
	log        zerolog.Logger
}

// NewClassifier creates a classifier strategy.
func NewClassifier(opts ClassifierOptions, log zerolog.Logger) *Classifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Classifier{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		log:        log.With().Str("strategy", StrategyClassifier).Logger(),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const classifierSystemPrompt = `You are an academic integrity checker. You will be given a student's answer.
Decide whether the text was generated by an AI model and whether it is plagiarized.
Respond with ONLY this JSON object and nothing else (no markdown, no code fences, no explanations):
{"isAIGenerated": true|false, "isPlagiarized": true|false}`

func (c *Classifier) Name() string { return StrategyClassifier }

func (c *Classifier) Analyze(ctx context.Context, text string) Verdict {
	content, err := c.complete(ctx, text)
	if err != nil {
		c.log.Warn().Err(err).Msg("Classifier unavailable, defaulting verdict to not flagged")
		return Verdict{AIEvaluated: true, Source: SourceFailed}
	}

	v := ParseClassifierReply(content)
	if v.Source == SourceFallback {
		c.log.Debug().Str("reply", content).Msg("Classifier reply was not valid JSON, used substring fallback")
	}
	return v
}

func (c *Classifier) complete(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: "Answer:\n" + text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if chat.Error != nil {
		return "", fmt.Errorf("classifier error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("empty response from classifier")
	}
	return chat.Choices[0].Message.Content, nil
}

// ParseClassifierReply turns the model's reply into a verdict.
// Tier one decodes {"isAIGenerated": bool, "isPlagiarized": bool} after trimming code fences.
// Tier two scans the lower-cased raw reply for the literal true patterns.
func ParseClassifierReply(content string) Verdict {
	var strict struct {
		IsAIGenerated *bool `json:"isAIGenerated"`
		IsPlagiarized *bool `json:"isPlagiarized"`
	}
	if err := json.Unmarshal([]byte(cleanJSONContent(content)), &strict); err == nil &&
		strict.IsAIGenerated != nil && strict.IsPlagiarized != nil {
		return Verdict{
			AIGenerated: *strict.IsAIGenerated,
			Plagiarized: *strict.IsPlagiarized,
			AIEvaluated: true,
			Source:      SourceStructured,
		}
	}

	lower := strings.ToLower(content)
	return Verdict{
		AIGenerated: strings.Contains(lower, `isaigenerated": true`),
		Plagiarized: strings.Contains(lower, `isplagiarized": true`),
		AIEvaluated: true,
		Source:      SourceFallback,
	}
}

func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
