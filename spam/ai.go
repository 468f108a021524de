package spam

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// systemPrompt biases the model toward minimizing false positives: ambiguity
// resolves to "not spam". The response contract is a single JSON object.
const systemPrompt = `You are a spam detector for live-stream chat. You will be given one chat message.

Spam in this context means: gambling-site promotion (online slots, "gacor", "maxwin", win-rate claims), contact-number solicitation, scam links, or repetitive commercial shilling.

Rules:
1. Ordinary conversation, jokes, criticism, and reactions are NOT spam.
2. If you are uncertain or the message is ambiguous, answer not spam.
3. Respond with ONLY a JSON object, no other text:
   {"is_spam": true|false, "confidence": 0-100, "reason": "<short reason>"}`

// Verdict is the remote classifier's parsed response.
type Verdict struct {
	IsSpam     bool   `json:"is_spam"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
}

// MinAIConfidence is the confidence floor below which a spam verdict is ignored.
const MinAIConfidence = 70

// AIDetector calls an OpenAI-compatible chat-completions endpoint as a
// best-effort second pass. Failures never abort a poll cycle; callers log and
// keep the heuristic classification.
type AIDetector struct {
	client *openai.Client
	model  string
}

// NewAIDetector builds a detector. Returns nil when no API key is configured,
// which disables the fallback entirely.
func NewAIDetector(apiKey, baseURL, model string) *AIDetector {
	if apiKey == "" {
		return nil
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &AIDetector{client: openai.NewClientWithConfig(cfg), model: model}
}

// Check classifies one message text. A malformed response is an error; the
// caller treats any error as "no signal".
func (d *AIDetector) Check(ctx context.Context, text string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.1,
		MaxTokens:   120,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Verdict{}, fmt.Errorf("no response choices")
	}
	return parseVerdict(resp.Choices[0].Message.Content)
}

// parseVerdict decodes the JSON contract, tolerating markdown code fences that
// some models wrap around JSON output.
func parseVerdict(content string) (Verdict, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var v Verdict
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return Verdict{}, fmt.Errorf("malformed classifier response: %w", err)
	}
	v.Confidence = clamp(v.Confidence)
	return v, nil
}
