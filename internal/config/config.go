package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "INSIGHTFLOW_CONFIG"

	geminiAPIKeyEnv      = "GEMINI_API_KEY"
	llmAPIKeyEnv         = "LLM_API_KEY"
	llmModelEnv          = "LLM_MODEL"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	githubTokenEnv       = "GITHUB_TOKEN"
	githubRepositoryEnv  = "GITHUB_REPOSITORY"
	mongoURIEnv          = "MONGODB_URI"
	catalogAPIKeyEnv     = "ARTIFICIAL_ANALYSIS_API_KEY"
	snapshotDriverEnv    = "SNAPSHOT_DRIVER"
	snapshotDSNEnv       = "SNAPSHOT_DSN"
	dryRunEnv            = "DRY_RUN"
	logLevelEnv          = "LOG_LEVEL"
	defaultUserAgent     = "InsightFlow/1.0"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

	defaultPriceThreshold = 0.10
)

// Config holds high-level settings required across the application.
type Config struct {
	DryRun    bool            `yaml:"dryRun"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Storage   StorageConfig   `yaml:"storage"`
	Snapshots SnapshotConfig  `yaml:"snapshots"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	LLM       LLMConfig       `yaml:"llm"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	GitHub    GitHubConfig    `yaml:"github"`
	MongoDB   MongoDBConfig   `yaml:"mongodb"`
	Sources   []SourceConfig  `yaml:"sources"`
}

// LoggingConfig selects slog level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SchedulerConfig defines when the pipeline should run in scheduled mode.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// StorageConfig points at the local data directory (seen-set and daily archive).
type StorageConfig struct {
	DataDir string `yaml:"dataDir"`
}

// SnapshotConfig configures the catalog snapshot database and delta options.
type SnapshotConfig struct {
	Driver         string  `yaml:"driver"`
	DSN            string  `yaml:"dsn"`
	TopN int `yaml:"topN"`
	// PriceThreshold is nil when unset so an explicit 0 survives the merge.
	PriceThreshold *float64 `yaml:"priceThreshold"`
}

// Threshold returns the configured price threshold, 0.10 when unset.
func (s SnapshotConfig) Threshold() float64 {
	if s.PriceThreshold == nil {
		return defaultPriceThreshold
	}
	return *s.PriceThreshold
}

// PipelineConfig carries filtering and fan-out limits.
type PipelineConfig struct {
	Keywords           []string `yaml:"keywords"`
	BypassSources      []string `yaml:"bypassSources"`
	Tags               []string `yaml:"tags"`
	BatchSize          int      `yaml:"batchSize"`
	RelevanceThreshold float64  `yaml:"relevanceThreshold"`
	NotableThreshold   float64  `yaml:"notableThreshold"`
	MaxIssues          int      `yaml:"maxIssues"`
	MaxDocuments       int      `yaml:"maxDocuments"`
}

// LLMConfig defines how to contact the OpenAI-compatible scoring endpoint.
type LLMConfig struct {
	BaseURL    string        `yaml:"baseUrl"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"apiKey"`
	Language   string        `yaml:"language"`
	BatchPause time.Duration `yaml:"batchPause"`
}

// CatalogConfig describes the AI model catalog API.
type CatalogConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"apiKey"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	BaseURL  string `yaml:"baseUrl"`
}

// GitHubConfig targets the repository that receives issues.
type GitHubConfig struct {
	Token      string `yaml:"token"`
	Repository string `yaml:"repository"`
	BaseURL    string `yaml:"baseUrl"`
}

// MongoDBConfig describes the document store.
type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// SourceConfig describes a single upstream with its scanner strategy.
type SourceConfig struct {
	Name    string            `yaml:"name"`
	Scanner string            `yaml:"scanner"`
	URL     string            `yaml:"url"`
	Options map[string]string `yaml:"options"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
// path takes precedence over INSIGHTFLOW_CONFIG when non-empty.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if fileCfg, err := Parse(raw); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultConfig().Sources
	}

	return cfg
}

// Parse decodes a YAML document without applying defaults.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(geminiAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Telegram.ChatID = v
	}

	if v := os.Getenv(githubTokenEnv); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv(githubRepositoryEnv); v != "" {
		c.GitHub.Repository = v
	}

	if v := os.Getenv(mongoURIEnv); v != "" {
		c.MongoDB.URI = v
	}

	if v := os.Getenv(catalogAPIKeyEnv); v != "" {
		c.Catalog.APIKey = v
	}

	if v := os.Getenv(snapshotDriverEnv); v != "" {
		c.Snapshots.Driver = v
	}
	if v := os.Getenv(snapshotDSNEnv); v != "" {
		c.Snapshots.DSN = v
	}

	if v := os.Getenv(dryRunEnv); v != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.DryRun = parsed
		} else {
			log.Printf("config: ignoring %s=%q: %v", dryRunEnv, v, err)
		}
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.DryRun {
		base.DryRun = true
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Storage.DataDir != "" {
		base.Storage.DataDir = override.Storage.DataDir
	}

	if override.Snapshots.Driver != "" {
		base.Snapshots.Driver = override.Snapshots.Driver
	}
	if override.Snapshots.DSN != "" {
		base.Snapshots.DSN = override.Snapshots.DSN
	}
	if override.Snapshots.TopN > 0 {
		base.Snapshots.TopN = override.Snapshots.TopN
	}
	if override.Snapshots.PriceThreshold != nil {
		base.Snapshots.PriceThreshold = override.Snapshots.PriceThreshold
	}

	if len(override.Pipeline.Keywords) > 0 {
		base.Pipeline.Keywords = override.Pipeline.Keywords
	}
	if override.Pipeline.BypassSources != nil {
		base.Pipeline.BypassSources = override.Pipeline.BypassSources
	}
	if len(override.Pipeline.Tags) > 0 {
		base.Pipeline.Tags = override.Pipeline.Tags
	}
	if override.Pipeline.BatchSize > 0 {
		base.Pipeline.BatchSize = override.Pipeline.BatchSize
	}
	if override.Pipeline.RelevanceThreshold > 0 {
		base.Pipeline.RelevanceThreshold = override.Pipeline.RelevanceThreshold
	}
	if override.Pipeline.NotableThreshold > 0 {
		base.Pipeline.NotableThreshold = override.Pipeline.NotableThreshold
	}
	if override.Pipeline.MaxIssues > 0 {
		base.Pipeline.MaxIssues = override.Pipeline.MaxIssues
	}
	if override.Pipeline.MaxDocuments > 0 {
		base.Pipeline.MaxDocuments = override.Pipeline.MaxDocuments
	}

	if override.LLM.BaseURL != "" {
		base.LLM.BaseURL = override.LLM.BaseURL
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.Language != "" {
		base.LLM.Language = override.LLM.Language
	}
	if override.LLM.BatchPause > 0 {
		base.LLM.BatchPause = override.LLM.BatchPause
	}

	if override.Catalog.URL != "" {
		base.Catalog.URL = override.Catalog.URL
	}
	if override.Catalog.APIKey != "" {
		base.Catalog.APIKey = override.Catalog.APIKey
	}

	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if override.Telegram.ChatID != "" {
		base.Telegram.ChatID = override.Telegram.ChatID
	}
	if override.Telegram.BaseURL != "" {
		base.Telegram.BaseURL = override.Telegram.BaseURL
	}

	if override.GitHub.Token != "" {
		base.GitHub.Token = override.GitHub.Token
	}
	if override.GitHub.Repository != "" {
		base.GitHub.Repository = override.GitHub.Repository
	}
	if override.GitHub.BaseURL != "" {
		base.GitHub.BaseURL = override.GitHub.BaseURL
	}

	if override.MongoDB.URI != "" {
		base.MongoDB.URI = override.MongoDB.URI
	}
	if override.MongoDB.Database != "" {
		base.MongoDB.Database = override.MongoDB.Database
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
		Storage:   StorageConfig{DataDir: "data"},
		Snapshots: SnapshotConfig{
			Driver:         "sqlite3",
			DSN:            "data/models.db",
			TopN:           10,
			PriceThreshold: ptr(defaultPriceThreshold),
		},
		Pipeline: PipelineConfig{
			Keywords: []string{
				"AI", "LLM", "GPT", "Gemini", "Claude", "transformer", "deep learning",
				"machine learning", "React", "TypeScript", "Rust", "Go", "Docker",
				"Kubernetes", "K8s", "DevOps", "CI/CD", "microservice", "API", "database",
				"PostgreSQL", "Redis", "cloud", "AWS", "GCP", "Azure", "serverless",
				"인공지능", "딥러닝", "머신러닝",
			},
			BypassSources: []string{"hackernews", "tldrai"},
			Tags: []string{
				"AI/ML", "LLM", "Frontend", "Backend", "DevOps", "Database",
				"Cloud", "Security", "Language", "Tool", "Career", "Other",
			},
			BatchSize:          8,
			RelevanceThreshold: 0.6,
			NotableThreshold:   0.8,
			MaxIssues:          5,
			MaxDocuments:       5,
		},
		LLM: LLMConfig{
			BaseURL:    defaultGeminiBaseURL,
			Model:      "gemini-2.5-flash",
			Language:   "Korean",
			BatchPause: 2 * time.Second,
		},
		Catalog: CatalogConfig{URL: "https://artificialanalysis.ai/api/v2/data/llms/models"},
		Telegram: TelegramConfig{
			BaseURL: "https://api.telegram.org",
		},
		GitHub:  GitHubConfig{BaseURL: "https://api.github.com"},
		MongoDB: MongoDBConfig{Database: "insightflow"},
		Sources: []SourceConfig{
			{Name: "geeknews", Scanner: "rss", URL: "https://news.hada.io/rss/news"},
			{
				Name:    "hackernews",
				Scanner: "hackernews",
				URL:     "https://hacker-news.firebaseio.com/v0/",
				Options: map[string]string{"top": "30"},
			},
			{Name: "tldrai", Scanner: "tldr", URL: "https://tldr.tech/api/latest/ai"},
		},
	}
}

func ptr[T any](v T) *T {
	return &v
}

// UserAgent is sent by every outbound HTTP adapter.
func UserAgent() string {
	return defaultUserAgent
}
