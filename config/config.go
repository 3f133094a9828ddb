package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Persistent store configuration
	StoreBackend string
	StoreFile    string
	SQLitePath   string

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Memcache configuration
	MemcacheAddr string

	// Page driver configuration
	BrowserDriver   string
	BrowserHeadless bool
	ChromeWSURL     string
	PageTimeout     time.Duration

	// Traversal configuration
	SettleDelay   time.Duration
	MaxIterations int
	MaxElapsed    time.Duration

	// Classifier configuration
	ClassifierProvider      string
	ClassifierTimeout       time.Duration
	ClassifierRatePerMinute int
	OCRAPIKey               string
	OCRAPIURL               string
	OpenAIAPIKey            string
	OpenAIAPIURL            string
	OpenAIModel             string
	ImageCachePolicy        string
	ImageRevisit            string
	SmallImageKB            int

	// Annotation and reports
	AnnotateTick  time.Duration
	ReportDir     string
	ReportPublish bool
	ErrorLogFile  string

	// Environment
	Environment string
}

var (
	storeBackends   = []string{"memory", "file", "sqlite", "redis", "memcache"}
	browserDrivers  = []string{"static", "playwright", "chromedp"}
	classifiers     = []string{"ocr", "openai"}
	cachePolicies   = []string{"positive-only", "all", "disabled"}
	revisitPolicies = []string{"never", "paginated", "always"}
)

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		StoreBackend:            getEnv("STORE_BACKEND", "file"),
		StoreFile:               getEnv("STORE_FILE", "srpauditor.json"),
		SQLitePath:              getEnv("SQLITE_PATH", "srpauditor.db"),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:                 getInt("REDIS_DB", 0),
		RedisStream:             getEnv("REDIS_STREAM", "srp_reports"),
		RedisStreamMaxLength:    getInt("REDIS_STREAM_MAX_LENGTH", 1000),
		MemcacheAddr:            getEnv("MEMCACHE_ADDR", "localhost:11211"),
		BrowserDriver:           getEnv("BROWSER_DRIVER", "static"),
		BrowserHeadless:         getBool("BROWSER_HEADLESS", true),
		ChromeWSURL:             getEnv("CHROME_WS_URL", ""),
		PageTimeout:             getDuration("PAGE_TIMEOUT", 30*time.Second),
		SettleDelay:             getDuration("SETTLE_DELAY", 2*time.Second),
		MaxIterations:           getInt("MAX_ITERATIONS", 500),
		MaxElapsed:              getDuration("MAX_ELAPSED", 30*time.Minute),
		ClassifierProvider:      getEnv("CLASSIFIER_PROVIDER", "ocr"),
		ClassifierTimeout:       getDuration("CLASSIFIER_TIMEOUT", 30*time.Second),
		ClassifierRatePerMinute: getInt("CLASSIFIER_RATE_PER_MINUTE", 60),
		OCRAPIKey:               getEnv("OCR_API_KEY", ""),
		OCRAPIURL:               getEnv("OCR_API_URL", "https://api.ocr.space/parse/image"),
		OpenAIAPIKey:            getEnv("OPENAI_API_KEY", ""),
		OpenAIAPIURL:            getEnv("OPENAI_API_URL", "https://api.openai.com/v1/chat/completions"),
		OpenAIModel:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ImageCachePolicy:        getEnv("IMAGE_CACHE_POLICY", "positive-only"),
		ImageRevisit:            getEnv("IMAGE_REVISIT", "paginated"),
		SmallImageKB:            getInt("SMALL_IMAGE_KB", 30),
		AnnotateTick:            getDuration("ANNOTATE_TICK", 250*time.Millisecond),
		ReportDir:               getEnv("REPORT_DIR", "reports"),
		ReportPublish:           getBool("REPORT_PUBLISH", false),
		ErrorLogFile:            getEnv("ERROR_LOG_FILE", "srpauditor_errors.log"),
		Environment:             getEnv("SRP_ENVIRONMENT", "development"),
	}
}

// Validate checks enum values and numeric ranges
func (c *Config) Validate() error {
	if !oneOf(c.StoreBackend, storeBackends) {
		return fmt.Errorf("STORE_BACKEND must be one of %s", strings.Join(storeBackends, ", "))
	}
	if !oneOf(c.BrowserDriver, browserDrivers) {
		return fmt.Errorf("BROWSER_DRIVER must be one of %s", strings.Join(browserDrivers, ", "))
	}
	if !oneOf(c.ClassifierProvider, classifiers) {
		return fmt.Errorf("CLASSIFIER_PROVIDER must be one of %s", strings.Join(classifiers, ", "))
	}
	if !oneOf(c.ImageCachePolicy, cachePolicies) {
		return fmt.Errorf("IMAGE_CACHE_POLICY must be one of %s", strings.Join(cachePolicies, ", "))
	}
	if !oneOf(c.ImageRevisit, revisitPolicies) {
		return fmt.Errorf("IMAGE_REVISIT must be one of %s", strings.Join(revisitPolicies, ", "))
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("MAX_ITERATIONS must be at least 1")
	}
	if c.MaxElapsed <= 0 {
		return fmt.Errorf("MAX_ELAPSED must be positive")
	}
	if c.PageTimeout <= 0 {
		return fmt.Errorf("PAGE_TIMEOUT must be positive")
	}
	if c.ClassifierTimeout <= 0 {
		return fmt.Errorf("CLASSIFIER_TIMEOUT must be positive")
	}
	if c.SmallImageKB < 1 {
		return fmt.Errorf("SMALL_IMAGE_KB must be at least 1")
	}
	if c.ClassifierRatePerMinute < 1 {
		return fmt.Errorf("CLASSIFIER_RATE_PER_MINUTE must be at least 1")
	}
	return nil
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDuration accepts Go duration strings ("2s") or plain seconds ("2")
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
