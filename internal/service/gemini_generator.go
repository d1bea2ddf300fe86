package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"leadflow/internal/config"
	"leadflow/internal/model"
)

// GeminiGenerator rephrases questions and writes closing messages via the Gemini API
type GeminiGenerator struct {
	config config.AIConfig
	client *http.Client
	logger *slog.Logger
}

// NewTextGenerator returns a Gemini-backed generator when an API key is
// configured, the static fallback generator otherwise
func NewTextGenerator(cfg config.AIConfig, logger *slog.Logger) TextGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.IsEnabled() {
		logger.Info("text generation disabled, using static copy")
		return StaticGenerator{}
	}
	return NewGeminiGenerator(cfg, logger)
}

// NewGeminiGenerator creates a new Gemini generator
func NewGeminiGenerator(cfg config.AIConfig, logger *slog.Logger) *GeminiGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiGenerator{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
		logger: logger,
	}
}

// Rephrase returns one rephrased text per question, in order
func (g *GeminiGenerator) Rephrase(ctx context.Context, questions []model.Question, rc RephraseContext) ([]string, error) {
	prompt, err := g.buildRephrasePrompt(questions, rc)
	if err != nil {
		return nil, err
	}
	response, err := g.callGemini(ctx, g.config.Models.Rephrase, prompt)
	if err != nil {
		return nil, err
	}

	var out struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(response), &out); err != nil {
		return nil, fmt.Errorf("decode rephrase response: %w", err)
	}
	return out.Questions, nil
}

// ComposeClosing writes a personalized closing message
func (g *GeminiGenerator) ComposeClosing(ctx context.Context, cc ClosingContext) (string, error) {
	prompt, err := g.buildClosingPrompt(cc)
	if err != nil {
		return "", err
	}
	response, err := g.callGemini(ctx, g.config.Models.Closing, prompt)
	if err != nil {
		return "", err
	}

	var out struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(response), &out); err != nil {
		return "", fmt.Errorf("decode closing response: %w", err)
	}
	if strings.TrimSpace(out.Message) == "" {
		return "", fmt.Errorf("empty closing message")
	}
	return out.Message, nil
}

// callGemini makes a request to the Gemini API
func (g *GeminiGenerator) callGemini(ctx context.Context, modelName, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s?key=%s", g.config.ModelEndpoint(modelName), g.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini %s: status %d", modelName, resp.StatusCode)
	}

	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", err
	}

	if len(geminiResp.Candidates) > 0 && len(geminiResp.Candidates[0].Content.Parts) > 0 {
		return geminiResp.Candidates[0].Content.Parts[0].Text, nil
	}
	return "", fmt.Errorf("empty response from Gemini")
}

func (g *GeminiGenerator) buildRephrasePrompt(questions []model.Question, rc RephraseContext) (string, error) {
	texts := FallbackRephrase(questions)
	qJSON, err := json.Marshal(texts)
	if err != nil {
		return "", err
	}
	ctxJSON, err := json.Marshal(rc)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`You are the friendly intake assistant for %s.
Rewrite each question below so it reads naturally in a conversation, taking the visitor's previous answers into account.
Keep the meaning of every question. Do not merge, drop or reorder questions.
Return ONLY valid JSON: {"questions": ["...", "..."]} with exactly %d entries.

Conversation so far: %s
Questions: %s`, rc.BusinessName, len(questions), ctxJSON, qJSON), nil
}

func (g *GeminiGenerator) buildClosingPrompt(cc ClosingContext) (string, error) {
	ctxJSON, err := json.Marshal(cc)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`You are writing the final message a visitor sees after completing the "%s" form for %s.
The visitor is a promising lead. Thank them by name if known, reference one or two specifics from their answers,
and tell them what happens next. Two or three sentences, warm and professional.
Return ONLY valid JSON: {"message": "..."}

Visitor context: %s`, cc.FormTitle, cc.BusinessName, ctxJSON), nil
}
