package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Optimizer OptimizerConfig
	CORS      CORSConfig
	Log       LogConfig
}

type CORSConfig struct {
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// LLMConfig holds credentials and tuning for the chat-completion provider.
type LLMConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
	Model        string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
}

// OptimizerConfig carries the default parameters of the evolutionary loop.
// Per-job overrides arrive with the submission request and are validated there.
type OptimizerConfig struct {
	PopulationSize      int
	MaxIterations       int
	Patience            int
	MinImprovement      float64
	EliteSize           int
	TournamentSize      int
	CrossoverRate       float64
	MutationRate        float64
	Improver            string
	ImproverCadence     int
	ImproverTopN        int
	EvalWorkers         int
	UseUniformCrossover bool
	ProgressTTL         time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{
		AllowedOrigins: splitAndTrim(v.GetString("CORS_ALLOWED_ORIGINS")),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.LLM = LLMConfig{
		BaseURL:      v.GetString("LLM_BASE_URL"),
		TokenURL:     v.GetString("LLM_TOKEN_URL"),
		ClientID:     v.GetString("LLM_CLIENT_ID"),
		ClientSecret: v.GetString("LLM_CLIENT_SECRET"),
		Scope:        v.GetString("LLM_SCOPE"),
		Model:        v.GetString("LLM_MODEL"),
		Temperature:  v.GetFloat64("LLM_TEMPERATURE"),
		MaxTokens:    v.GetInt("LLM_MAX_TOKENS"),
		Timeout:      parseDuration(v.GetString("LLM_TIMEOUT"), 30*time.Second),
	}

	cfg.Optimizer = OptimizerConfig{
		PopulationSize:      v.GetInt("OPTIMIZER_POPULATION_SIZE"),
		MaxIterations:       v.GetInt("OPTIMIZER_MAX_ITERATIONS"),
		Patience:            v.GetInt("OPTIMIZER_PATIENCE"),
		MinImprovement:      v.GetFloat64("OPTIMIZER_MIN_IMPROVEMENT"),
		EliteSize:           v.GetInt("OPTIMIZER_ELITE_SIZE"),
		TournamentSize:      v.GetInt("OPTIMIZER_TOURNAMENT_SIZE"),
		CrossoverRate:       v.GetFloat64("OPTIMIZER_CROSSOVER_RATE"),
		MutationRate:        v.GetFloat64("OPTIMIZER_MUTATION_RATE"),
		Improver:            v.GetString("OPTIMIZER_IMPROVER"),
		ImproverCadence:     v.GetInt("OPTIMIZER_IMPROVER_CADENCE"),
		ImproverTopN:        v.GetInt("OPTIMIZER_IMPROVER_TOP_N"),
		EvalWorkers:         v.GetInt("OPTIMIZER_EVAL_WORKERS"),
		UseUniformCrossover: v.GetBool("OPTIMIZER_UNIFORM_CROSSOVER"),
		ProgressTTL:         parseDuration(v.GetString("OPTIMIZER_PROGRESS_TTL"), time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "university_timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("CORS_ALLOWED_ORIGINS", "")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LLM_BASE_URL", "https://gigachat.devices.sberbank.ru/api/v1")
	v.SetDefault("LLM_TOKEN_URL", "https://ngw.devices.sberbank.ru:9443/api/v2/oauth")
	v.SetDefault("LLM_CLIENT_ID", "")
	v.SetDefault("LLM_CLIENT_SECRET", "")
	v.SetDefault("LLM_SCOPE", "GIGACHAT_API_PERS")
	v.SetDefault("LLM_MODEL", "GigaChat")
	v.SetDefault("LLM_TEMPERATURE", 0.7)
	v.SetDefault("LLM_MAX_TOKENS", 2000)
	v.SetDefault("LLM_TIMEOUT", "30s")

	v.SetDefault("OPTIMIZER_POPULATION_SIZE", 50)
	v.SetDefault("OPTIMIZER_MAX_ITERATIONS", 100)
	v.SetDefault("OPTIMIZER_PATIENCE", 15)
	v.SetDefault("OPTIMIZER_MIN_IMPROVEMENT", 0.01)
	v.SetDefault("OPTIMIZER_ELITE_SIZE", 10)
	v.SetDefault("OPTIMIZER_TOURNAMENT_SIZE", 5)
	v.SetDefault("OPTIMIZER_CROSSOVER_RATE", 0.8)
	v.SetDefault("OPTIMIZER_MUTATION_RATE", 0.1)
	v.SetDefault("OPTIMIZER_IMPROVER", "none")
	v.SetDefault("OPTIMIZER_IMPROVER_CADENCE", 10)
	v.SetDefault("OPTIMIZER_IMPROVER_TOP_N", 3)
	v.SetDefault("OPTIMIZER_EVAL_WORKERS", 4)
	v.SetDefault("OPTIMIZER_UNIFORM_CROSSOVER", true)
	v.SetDefault("OPTIMIZER_PROGRESS_TTL", "1h")
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}
