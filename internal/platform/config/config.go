package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig は設定値が不正な場合に返される
var ErrInvalidConfig = errors.New("invalid configuration")

// Config はアプリケーション全体の設定を保持します
type Config struct {
	LLM        LLMConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	Index      IndexConfig
	Database   DatabaseConfig
	Answer     AnswerConfig
	Citation   CitationConfig
	Quote      QuoteConfig
	Resilience ResilienceConfig
	Log        LogConfig
	Server     ServerConfig

	// DiagnosticsDir は診断イベント(JSONL)の出力先。空なら無効
	DiagnosticsDir string

	PhraseBookPath string
	PhraseBook     *PhraseBook
}

// LLMConfig は生成・Embedding モデルの設定
type LLMConfig struct {
	Provider          string // "openai" or "gemini"
	EmbeddingProvider string // "openai" or "gemini"
	GenerationModel   string
	EmbeddingModel    string
	Temperature       float64
	RequestsPerMinute int // 0 は無制限
}

// OpenAIConfig は OpenAI API 設定
type OpenAIConfig struct {
	APIKey string
}

// GeminiConfig は Gemini API 設定
type GeminiConfig struct {
	APIKey string
}

// IndexConfig は永続化インデックスの設定
type IndexConfig struct {
	Backend            string // "sqlite" or "postgres"
	Path               string
	DataDir            string
	ChunkSize          int
	ChunkOverlap       int
	EmbeddingDimension int
	SearchK            int
	LoadAttempts       int
	LoadBackoff        time.Duration
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// AnswerConfig は回答生成の設定
type AnswerConfig struct {
	ReferenceDate   time.Time
	HistoryTurns    int
	MaxPromptTokens int
}

// CitationConfig は引用照合の閾値
type CitationConfig struct {
	MinOverlapWords       int
	MinOverlapRatio       float64
	MinListItemSubsection int
}

// QuoteConfig は引用抽出の設定
type QuoteConfig struct {
	MinLength int
}

// ResilienceConfig はリトライとタイムアウトの設定
type ResilienceConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	Timeout     time.Duration
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string
	Format string
}

// ServerConfig は HTTP サーバー設定
type ServerConfig struct {
	Port int
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	provider := getEnv("LLM_PROVIDER", "openai")
	embeddingProvider := getEnv("EMBEDDING_PROVIDER", "openai")

	cfg := &Config{
		LLM: LLMConfig{
			Provider:          provider,
			EmbeddingProvider: embeddingProvider,
			GenerationModel:   getEnv("LLM_MODEL", defaultGenerationModel(provider)),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", defaultEmbeddingModel(embeddingProvider)),
			Temperature:       getEnvAsFloat("LLM_TEMPERATURE", 0),
			RequestsPerMinute: getEnvAsInt("LLM_REQUESTS_PER_MINUTE", 0),
		},
		OpenAI: OpenAIConfig{
			APIKey: getEnv("OPENAI_API_KEY", ""),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
		},
		Index: IndexConfig{
			Backend:            getEnv("INDEX_BACKEND", "sqlite"),
			Path:               getEnv("INDEX_PATH", "vectorstore/index.db"),
			DataDir:            getEnv("DATA_DIR", "data"),
			ChunkSize:          getEnvAsInt("CHUNK_SIZE", 800),
			ChunkOverlap:       getEnvAsInt("CHUNK_OVERLAP", 50),
			EmbeddingDimension: getEnvAsInt("EMBEDDING_DIMENSION", 1536),
			SearchK:            getEnvAsInt("SEARCH_K", 2),
			LoadAttempts:       getEnvAsInt("INDEX_LOAD_ATTEMPTS", 3),
			LoadBackoff:        getEnvAsDuration("INDEX_LOAD_BACKOFF", time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "steuerrag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "steuerrag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Answer: AnswerConfig{
			HistoryTurns:    getEnvAsInt("HISTORY_TURNS", 4),
			MaxPromptTokens: getEnvAsInt("MAX_PROMPT_TOKENS", 12000),
		},
		Citation: CitationConfig{
			MinOverlapWords:       getEnvAsInt("CITATION_MIN_OVERLAP_WORDS", 3),
			MinOverlapRatio:       getEnvAsFloat("CITATION_MIN_OVERLAP_RATIO", 0.2),
			MinListItemSubsection: getEnvAsInt("CITATION_MIN_LIST_ITEM", 5),
		},
		Quote: QuoteConfig{
			MinLength: getEnvAsInt("QUOTE_MIN_LENGTH", 50),
		},
		Resilience: ResilienceConfig{
			MaxAttempts: getEnvAsInt("MAX_RETRIES", 5),
			BaseDelay:   getEnvAsDuration("BACKOFF_BASE", time.Second),
			MaxDelay:    getEnvAsDuration("BACKOFF_MAX", 60*time.Second),
			Jitter:      getEnvAsFloat("BACKOFF_JITTER", 0.5),
			Timeout:     getEnvAsDuration("PIPELINE_TIMEOUT", 45*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Server: ServerConfig{
			Port: getEnvAsInt("PORT", 8080),
		},
		DiagnosticsDir: getEnv("DIAGNOSTICS_DIR", ""),
		PhraseBookPath: getEnv("PHRASEBOOK_PATH", ""),
	}

	refDate, err := time.Parse("2006-01-02", getEnv("REFERENCE_DATE", "2025-10-01"))
	if err != nil {
		return nil, fmt.Errorf("%w: REFERENCE_DATE: %v", ErrInvalidConfig, err)
	}
	cfg.Answer.ReferenceDate = refDate

	pb, err := LoadPhraseBook(cfg.PhraseBookPath)
	if err != nil {
		return nil, err
	}
	cfg.PhraseBook = pb

	return cfg, nil
}

// Validate は起動に必要な設定を検証する。失敗は致命的な設定エラー
func (c *Config) Validate() error {
	for _, p := range []string{c.LLM.Provider, c.LLM.EmbeddingProvider} {
		switch p {
		case "openai":
			if err := ValidateOpenAIKey(c.OpenAI.APIKey); err != nil {
				return err
			}
		case "gemini":
			if c.Gemini.APIKey == "" {
				return fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrInvalidConfig)
			}
		default:
			return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, p)
		}
	}

	switch c.Index.Backend {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unknown index backend %q", ErrInvalidConfig, c.Index.Backend)
	}

	switch {
	case c.Index.SearchK < 1:
		return fmt.Errorf("%w: SEARCH_K must be positive", ErrInvalidConfig)
	case c.Index.ChunkSize < 1 || c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize:
		return fmt.Errorf("%w: chunk overlap must be smaller than chunk size", ErrInvalidConfig)
	case c.Resilience.MaxAttempts < 1:
		return fmt.Errorf("%w: MAX_RETRIES must be at least 1", ErrInvalidConfig)
	case c.Resilience.Timeout <= 0:
		return fmt.Errorf("%w: PIPELINE_TIMEOUT must be positive", ErrInvalidConfig)
	case c.Resilience.Jitter < 0 || c.Resilience.Jitter > 1:
		return fmt.Errorf("%w: BACKOFF_JITTER must be between 0 and 1", ErrInvalidConfig)
	case c.PhraseBook == nil:
		return fmt.Errorf("%w: phrase book not loaded", ErrInvalidConfig)
	}

	return nil
}

// ValidateOpenAIKey は OpenAI の API キー形式を検証する
func ValidateOpenAIKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrInvalidConfig)
	}
	if len(key) < 20 {
		return fmt.Errorf("%w: OPENAI_API_KEY appears to be invalid (too short)", ErrInvalidConfig)
	}
	if !strings.HasPrefix(key, "sk-") {
		return fmt.Errorf("%w: OPENAI_API_KEY does not start with 'sk-'", ErrInvalidConfig)
	}
	return nil
}

func defaultGenerationModel(provider string) string {
	if provider == "gemini" {
		return "gemini-2.5-flash"
	}
	return "gpt-4o"
}

func defaultEmbeddingModel(provider string) string {
	if provider == "gemini" {
		return "gemini-embedding-001"
	}
	return "text-embedding-3-small"
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は "45s" 形式、または秒数の整数として取得します
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
