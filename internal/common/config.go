package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	Analysis AnalysisConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "sqlite" | "postgres"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr         string
	RequestTimeout   time.Duration
	MaxUploadMB      int
	AllowServerPaths bool
	WatchDir         string // empty disables the directory watcher
	WatchInitialScan bool
	Workers          int
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engine              string // "tesseract" | "gosseract" | "gemini"
	TesseractLang       string
	TessdataDir         string
	DPI                 int
	MaxPages            int
	EnableTSVConfidence bool
	HeicConverter       string
	ArtifactCacheDir    string
	GeminiAPIKey        string
	GeminiModel         string
}

// AnalysisConfig holds normalizer, extractor and classifier configuration
type AnalysisConfig struct {
	ModelPath     string
	CommaPolicy   string
	Fields        []string // used only when no model is loaded
	MinConfidence float32
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", "file:labreport.db?_pragma=busy_timeout(5000)"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr:         getEnv("GRPC_ADDR", ":8080"),
			RequestTimeout:   getEnvAsDuration("REQUEST_TIMEOUT", 2*time.Minute),
			MaxUploadMB:      getEnvAsInt("MAX_UPLOAD_MB", 20),
			AllowServerPaths: getEnvAsBool("ALLOW_SERVER_PATHS", false),
			WatchDir:         getEnv("WATCH_DIR", ""),
			WatchInitialScan: getEnvAsBool("WATCH_INITIAL_SCAN", true),
			Workers:          getEnvAsInt("WORKERS", 4),
		},
		OCR: OCRConfig{
			Engine:              getEnv("OCR_ENGINE", "tesseract"),
			TesseractLang:       getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:         getEnv("TESSDATA_PREFIX", ""),
			DPI:                 getEnvAsInt("OCR_DPI", 300),
			MaxPages:            getEnvAsInt("OCR_MAX_PAGES", 0),
			EnableTSVConfidence: getEnvAsBool("OCR_TSV_CONFIDENCE", false),
			HeicConverter:       getEnv("HEIC_CONVERTER", "magick"),
			ArtifactCacheDir:    getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
			GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
			GeminiModel:         getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		Analysis: AnalysisConfig{
			ModelPath:     getEnv("MODEL_PATH", ""),
			CommaPolicy:   getEnv("COMMA_POLICY", "auto"),
			Fields:        getEnvAsList("REQUIRED_FIELDS"),
			MinConfidence: getEnvAsFloat32("MIN_OCR_CONFIDENCE", 0.60),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsList splits on ';' so field names may contain commas.
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("DB_DRIVER", c.Database.Driver, Required, OneOf("sqlite", "postgres")).
		Field("DB_URL", c.Database.DSN, Required).
		Field("OCR_ENGINE", c.OCR.Engine, Required, OneOf("tesseract", "gosseract", "gemini")).
		Field("COMMA_POLICY", c.Analysis.CommaPolicy, Required, OneOf("auto", "thousands", "decimal", "keep"))
	if c.OCR.Engine == "gemini" {
		v.Field("GEMINI_API_KEY", c.OCR.GeminiAPIKey, Required)
	}
	if c.Analysis.ModelPath == "" && len(c.Analysis.Fields) == 0 {
		v.Field("MODEL_PATH", c.Analysis.ModelPath, Required)
	}
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
