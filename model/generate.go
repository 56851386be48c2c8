package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type LLMClient struct {
	apiURL string
	model  string
	client *http.Client
	retry  RetryPolicy
}

type GenerateRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
}

type GenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewLLMClient(apiURL, llmModel string) *LLMClient {
	return &LLMClient{
		apiURL: apiURL,
		model:  llmModel,
		client: &http.Client{Timeout: 120 * time.Second},
		retry:  DefaultRetryPolicy(),
	}
}

func (l *LLMClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	var answer string
	err := l.retry.Do(ctx, func(ctx context.Context) error {
		a, err := l.generateOnce(ctx, system, prompt)
		if err != nil {
			return err
		}
		answer = a
		return nil
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

func (l *LLMClient) generateOnce(ctx context.Context, system, prompt string) (string, error) {
	reqBody, err := json.Marshal(GenerateRequest{
		Model:  l.model,
		System: system,
		Prompt: prompt,
	})
	if err != nil {
		return "", NewPermanent("llm", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.apiURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", NewPermanent("llm", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", NewTransient("llm", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("llm API status %d, body: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", NewTransient("llm", err)
		}
		return "", NewPermanent("llm", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewTransient("llm", err)
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err == nil && genResp.Response != "" {
		return genResp.Response, nil
	}

	// Streaming response, concatenate the chunks.
	var output strings.Builder
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var chunk GenerateResponse
		if err := decoder.Decode(&chunk); err != nil {
			return "", NewPermanent("llm", fmt.Errorf("decode response: %w", err))
		}
		output.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	return output.String(), nil
}

// ExtractJSON returns the outermost JSON object embedded in s. Models
// tend to wrap their output in prose or markdown fences.
func ExtractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")

	if start == -1 || end == -1 || end <= start {
		return s, errors.New("no valid json found")
	}

	return s[start : end+1], nil
}

// ExtractJSONArray is ExtractJSON for top-level arrays.
func ExtractJSONArray(s string) (string, error) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")

	if start == -1 || end == -1 || end <= start {
		return s, errors.New("no valid json array found")
	}

	return s[start : end+1], nil
}

// BuildRepairPrompt asks the model to fix its own malformed JSON output.
func BuildRepairPrompt(badOutput string) string {
	return fmt.Sprintf(`
You previously returned an invalid JSON.

Your task is to FIX the JSON.

RULES:
- Output ONLY valid JSON
- Do NOT add or remove information
- Do NOT add explanations
- Do NOT include markdown
- Do NOT include text outside JSON

INVALID OUTPUT:
<<<
%s
>>>

Return the corrected JSON only.
`, badOutput)
}
