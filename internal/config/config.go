package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"gwi.com/wonderland-chat/internal/core"
	"gwi.com/wonderland-chat/internal/i18n"
	"gwi.com/wonderland-chat/internal/store"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	defaultSQLitePath = "wonderland_chat.db"
	defaultPebbleDir  = "wonderland_chat.pebble"
)

// Viper keys. Each one is also read from the upper-cased environment variable.
const (
	KeyGeneralProvider = "general_provider"
	KeyOpenAIAPIKey    = "openai_api_key"
	KeyOpenAIModel     = "openai_model"
	KeyOpenAIBaseURL   = "openai_base_url"
	KeyGeminiAPIKey    = "gemini_api_key"
	KeyGeminiModel     = "gemini_model"
	KeyRAGEndpoint     = "rag_endpoint"
	KeyRAGTimeout      = "rag_timeout"
	KeyStoreDriver     = "store_driver"
	KeyDatabaseURL     = "database_url"
	KeyStoreKey        = "store_key"
	KeyHTTPPort        = "http_port"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
	KeyLogFile         = "log_file"
	KeyLocale          = "chat_locale"
)

// ErrMissingCredential is returned by Validate when the selected general
// provider has no API key. Callers may still run with domain mode only.
var ErrMissingCredential = errors.New("missing API key for the general provider")

type Config struct {
	GeneralProvider string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	GeminiAPIKey string
	GeminiModel  string

	RAGEndpoint string
	RAGTimeout  time.Duration

	StoreDriver string
	DatabaseURL string
	StoreKey    string

	HTTPPort string

	LogLevel  string
	LogFormat string
	LogFile   string

	Locale string
}

// LoadDotEnv loads a .env file from the working directory if there is one
// and reports whether it did. It runs before logging is configured, so it
// does not log.
func LoadDotEnv() bool {
	return godotenv.Load() == nil
}

// SetDefaults registers every key's default and enables environment lookup.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyGeneralProvider, ProviderOpenAI)
	v.SetDefault(KeyOpenAIModel, core.DefaultOpenAIModel)
	v.SetDefault(KeyGeminiModel, core.DefaultGeminiModel)
	v.SetDefault(KeyRAGEndpoint, core.DefaultRAGEndpoint)
	v.SetDefault(KeyRAGTimeout, core.DefaultRAGTimeout.String())
	v.SetDefault(KeyStoreDriver, store.DriverSQLite)
	v.SetDefault(KeyStoreKey, store.DefaultKey)
	v.SetDefault(KeyHTTPPort, "8080")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyLocale, i18n.DefaultLocale)

	// Keys without a default still need binding so AutomaticEnv finds them
	// through Get.
	for _, k := range []string{KeyOpenAIAPIKey, KeyOpenAIBaseURL, KeyGeminiAPIKey, KeyDatabaseURL, KeyLogFile} {
		_ = v.BindEnv(k)
	}
	v.AutomaticEnv()
}

// LoadConfig reads the configuration out of v. SetDefaults must have been
// called on v first.
func LoadConfig(v *viper.Viper) (Config, error) {
	timeout, err := parseTimeout(v.GetString(KeyRAGTimeout))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		GeneralProvider: strings.ToLower(strings.TrimSpace(v.GetString(KeyGeneralProvider))),
		OpenAIAPIKey:    strings.TrimSpace(v.GetString(KeyOpenAIAPIKey)),
		OpenAIModel:     v.GetString(KeyOpenAIModel),
		OpenAIBaseURL:   v.GetString(KeyOpenAIBaseURL),
		GeminiAPIKey:    strings.TrimSpace(v.GetString(KeyGeminiAPIKey)),
		GeminiModel:     v.GetString(KeyGeminiModel),
		RAGEndpoint:     v.GetString(KeyRAGEndpoint),
		RAGTimeout:      timeout,
		StoreDriver:     strings.ToLower(strings.TrimSpace(v.GetString(KeyStoreDriver))),
		DatabaseURL:     v.GetString(KeyDatabaseURL),
		StoreKey:        v.GetString(KeyStoreKey),
		HTTPPort:        v.GetString(KeyHTTPPort),
		LogLevel:        v.GetString(KeyLogLevel),
		LogFormat:       v.GetString(KeyLogFormat),
		LogFile:         v.GetString(KeyLogFile),
		Locale:          v.GetString(KeyLocale),
	}

	if cfg.DatabaseURL == "" {
		switch cfg.StoreDriver {
		case store.DriverPebble:
			cfg.DatabaseURL = defaultPebbleDir
		case store.DriverSQLite:
			cfg.DatabaseURL = defaultSQLitePath
		}
	}
	return cfg, nil
}

// parseTimeout accepts Go durations ("90s") and bare numbers of seconds.
func parseTimeout(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, errors.Errorf("RAG_TIMEOUT must be positive, got %q", raw)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, errors.Errorf("invalid RAG_TIMEOUT %q", raw)
	}
	return d, nil
}

// Validate checks the values LoadConfig cannot fix up on its own. A missing
// credential is reported as ErrMissingCredential.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case store.DriverSQLite, store.DriverPebble, store.DriverMemory:
	default:
		return errors.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.GeneralProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.Wrap(ErrMissingCredential, "OPENAI_API_KEY is not set")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.Wrap(ErrMissingCredential, "GEMINI_API_KEY is not set")
		}
	default:
		return errors.Errorf("unknown GENERAL_PROVIDER %q", c.GeneralProvider)
	}
	return nil
}
