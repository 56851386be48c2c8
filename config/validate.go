package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Database.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "database URL is required",
		})
	}

	if c.Embedding.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "embedding.url",
			Message: "embedding service URL is required",
		})
	} else if _, err := url.Parse(c.Embedding.URL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "embedding.url",
			Message: "invalid embedding service URL",
		})
	}

	if c.Embedding.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Embedding.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "embedding.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.LLM.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.url",
			Message: "LLM service URL is required",
		})
	} else if _, err := url.Parse(c.LLM.URL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.url",
			Message: "invalid LLM service URL",
		})
	}

	if c.Chunker.Window < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunker.window",
			Message: "window must be positive",
		})
	}

	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Window {
		errors = append(errors, ValidationError{
			Field:   "chunker.overlap",
			Message: "overlap must be non-negative and less than window",
		})
	}

	if c.Chunker.MinFragment < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunker.min_fragment",
			Message: "min_fragment must be positive",
		})
	}

	if c.Ingest.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingest.workers",
			Message: "workers must be positive",
		})
	}

	if c.Ingest.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingest.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Retrieval.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Retrieval.TokenBudget < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.token_budget",
			Message: "token_budget must be positive",
		})
	}

	return errors
}
