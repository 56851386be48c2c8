package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Embedding struct {
		URL       string  `yaml:"url"`
		VectorDim int     `yaml:"vector_dim"`
		RateLimit float64 `yaml:"rate_limit"`
	} `yaml:"embedding"`

	LLM struct {
		URL   string `yaml:"url"`
		Model string `yaml:"model"`
	} `yaml:"llm"`

	Chunker struct {
		Window      int `yaml:"window"`
		Overlap     int `yaml:"overlap"`
		MinFragment int `yaml:"min_fragment"`
	} `yaml:"chunker"`

	Ingest struct {
		Workers   int `yaml:"workers"`
		BatchSize int `yaml:"batch_size"`
	} `yaml:"ingest"`

	Retrieval struct {
		TopK        int `yaml:"top_k"`
		TokenBudget int `yaml:"token_budget"`
	} `yaml:"retrieval"`
}

func LoadConfig(path string) (*Config, error) {
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
		}
		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %v", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %v", err)
		}
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":3000"
	}

	if config.Embedding.VectorDim == 0 {
		config.Embedding.VectorDim = 768
	}
	if config.Embedding.RateLimit == 0 {
		config.Embedding.RateLimit = 8.0
	}

	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}

	if config.Chunker.Window == 0 {
		config.Chunker.Window = 1200
	}
	if config.Chunker.Overlap == 0 {
		config.Chunker.Overlap = 200
	}
	if config.Chunker.MinFragment == 0 {
		config.Chunker.MinFragment = 40
	}

	if config.Ingest.Workers == 0 {
		config.Ingest.Workers = 4
	}
	if config.Ingest.BatchSize == 0 {
		config.Ingest.BatchSize = 16
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 20
	}
	if config.Retrieval.TokenBudget == 0 {
		config.Retrieval.TokenBudget = 2048
	}
}

func mergeWithEnv(config *Config) {
	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if embURL := os.Getenv("EMBEDDING_URL"); embURL != "" {
		config.Embedding.URL = embURL
	}
	if llmURL := os.Getenv("LLM_URL"); llmURL != "" {
		config.LLM.URL = llmURL
	}
	if llmModel := os.Getenv("LLM_MODEL"); llmModel != "" {
		config.LLM.Model = llmModel
	}
}
