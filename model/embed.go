package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// EmbeddingClient talks to the embedding HTTP service. Vectors are
// L2-normalized before being returned so cosine distance in the store
// behaves consistently.
type EmbeddingClient struct {
	apiURL  string
	dim     int
	client  *http.Client
	limiter *rate.Limiter
	retry   RetryPolicy
}

type EmbeddingRequest struct {
	Text string `json:"text"`
}

type EmbeddingResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func NewEmbeddingClient(apiURL string, dim int, rps float64) *EmbeddingClient {
	return &EmbeddingClient{
		apiURL:  apiURL,
		dim:     dim,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   DefaultRetryPolicy(),
	}
}

func (e *EmbeddingClient) Dimension() int {
	return e.dim
}

func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := e.retry.Do(ctx, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		v, err := e.embedOnce(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func (e *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed batch item %d: %w", i, err)
		}
		vecs[i] = v
	}
	return vecs, nil
}

func (e *EmbeddingClient) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(EmbeddingRequest{Text: text})
	if err != nil {
		return nil, NewPermanent("embedding", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, NewPermanent("embedding", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, NewTransient("embedding", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("embedding API status %d, body: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, NewTransient("embedding", err)
		}
		return nil, NewPermanent("embedding", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransient("embedding", err)
	}

	var embResp EmbeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, NewPermanent("embedding", fmt.Errorf("unmarshal response: %w", err))
	}
	if len(embResp.Embeddings) == 0 {
		return nil, NewPermanent("embedding", fmt.Errorf("no embeddings in response"))
	}

	raw := embResp.Embeddings[0]
	if len(raw) != e.dim {
		return nil, NewPermanent("embedding", fmt.Errorf("vector dimension %d, want %d", len(raw), e.dim))
	}

	norm := normalize64(raw)

	vec := make([]float32, len(norm))
	for i, v := range norm {
		vec[i] = float32(v)
	}
	return vec, nil
}

func normalize64(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}

	for i, x := range vec {
		vec[i] = x / norm
	}
	return vec
}
