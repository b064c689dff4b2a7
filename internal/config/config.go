package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	EmbedLLM   LLMConfig        `yaml:"embed_llm"`
	ChatLLM    LLMConfig        `yaml:"chat_llm"`
	RAG        RAGConfig        `yaml:"rag"`
	Database   DatabaseConfig   `yaml:"database"`
	Quiz       QuizConfig       `yaml:"quiz"`
	Difficulty DifficultyConfig `yaml:"difficulty"`
}

type ServerConfig struct {
	Addr           string `yaml:"addr"`
	GinMode        string `yaml:"gin_mode"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	UploadDir      string `yaml:"upload_dir"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"` // "ollama" or "openai"
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

type RAGConfig struct {
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	TopK           int    `yaml:"top_k"`
	DBPath         string `yaml:"db_path"`
	CollectionName string `yaml:"collection_name"`
	InMemory       bool   `yaml:"in_memory"`
	EncryptionKey  string `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	URL   string `yaml:"url"`
	Key   string `yaml:"key"`
	Debug bool   `yaml:"debug"`
}

type QuizConfig struct {
	DefaultSize int `yaml:"default_size"`
}

// Band is an inclusive difficulty score range.
type Band struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type DifficultyConfig struct {
	Levels map[string]Band `yaml:"levels"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			GinMode:        "release",
			MaxUploadBytes: 20 << 20,
			UploadDir:      "data/documents",
		},
		EmbedLLM: LLMConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "nomic-embed-text",
		},
		RAG: RAGConfig{
			ChunkSize:      1000,
			ChunkOverlap:   200,
			TopK:           5,
			DBPath:         "data/vector_db",
			CollectionName: "study_buddy",
		},
		Quiz: QuizConfig{DefaultSize: 5},
		Difficulty: DifficultyConfig{
			Levels: map[string]Band{
				"beginner":     {Min: 0.0, Max: 0.3},
				"intermediate": {Min: 0.3, Max: 0.7},
				"advanced":     {Min: 0.7, Max: 1.0},
			},
		},
	}
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.GinMode == "" {
		c.Server.GinMode = d.Server.GinMode
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = d.Server.MaxUploadBytes
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = d.Server.UploadDir
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = d.RAG.ChunkSize
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = d.RAG.ChunkOverlap
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = d.RAG.TopK
	}
	if c.RAG.DBPath == "" {
		c.RAG.DBPath = d.RAG.DBPath
	}
	if c.RAG.CollectionName == "" {
		c.RAG.CollectionName = d.RAG.CollectionName
	}
	if c.EmbedLLM.Model == "" {
		c.EmbedLLM = d.EmbedLLM
	}
	if c.Quiz.DefaultSize == 0 {
		c.Quiz.DefaultSize = d.Quiz.DefaultSize
	}
	if len(c.Difficulty.Levels) == 0 {
		c.Difficulty.Levels = d.Difficulty.Levels
	}
}

// Validate rejects settings that would break chunking or retrieval.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 {
		return fmt.Errorf("rag.chunk_overlap must not be negative, got %d", c.RAG.ChunkOverlap)
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap (%d) must be smaller than rag.chunk_size (%d)",
			c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.EmbedLLM.Model == "" {
		return fmt.Errorf("embed_llm.model is required")
	}
	return nil
}
