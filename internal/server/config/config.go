package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	RecognizerMock    = "mock"
	RecognizerWhisper = "whisper"
)

const (
	defaultConfigFile           = ".env.server"
	defaultServerAddr           = "127.0.0.1:5000"
	defaultServerName           = "transcribe-server"
	defaultFileField            = "audio"
	defaultMaxRequestBodySize   = 1024 * 1024 * 1024 // 1 GiB
	defaultPprofAddr            = ":6060"
	defaultReadTimeout          = 30 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 60 * time.Second
	defaultMaxConcurrentUploads = 4
	defaultLanguage             = "pt-BR"
	defaultRecognizer           = RecognizerMock
	defaultWhisperURL           = "http://127.0.0.1:8000/v1/audio/transcriptions"
	defaultWhisperModel         = "whisper-1"
	defaultRecognizerTimeout    = 60 * time.Second

	keyAddr                 = "TRANSCRIBE_SERVER_ADDR"
	keyName                 = "TRANSCRIBE_SERVER_NAME"
	keyMaxRequestBodySize   = "TRANSCRIBE_SERVER_MAX_REQUEST_BODY_SIZE"
	keyFileField            = "TRANSCRIBE_SERVER_FILE_FIELD"
	keyAllowedHosts         = "TRANSCRIBE_SERVER_ALLOWED_HOSTS"
	keyPprofEnabled         = "TRANSCRIBE_SERVER_PPROF_ENABLED"
	keyPprofAddr            = "TRANSCRIBE_SERVER_PPROF_ADDR"
	keyReadTimeout          = "TRANSCRIBE_SERVER_READ_TIMEOUT"
	keyWriteTimeout         = "TRANSCRIBE_SERVER_WRITE_TIMEOUT"
	keyIdleTimeout          = "TRANSCRIBE_SERVER_IDLE_TIMEOUT"
	keyMaxConcurrentUploads = "TRANSCRIBE_SERVER_MAX_CONCURRENT_UPLOADS"
	keyLanguage             = "TRANSCRIBE_SERVER_LANGUAGE"
	keyRecognizer           = "TRANSCRIBE_SERVER_RECOGNIZER"
	keyWhisperURL           = "TRANSCRIBE_SERVER_WHISPER_URL"
	keyWhisperModel         = "TRANSCRIBE_SERVER_WHISPER_MODEL"
	keyWhisperAPIKey        = "TRANSCRIBE_SERVER_WHISPER_API_KEY"
	keyRecognizerTimeout    = "TRANSCRIBE_SERVER_RECOGNIZER_TIMEOUT"
)

var Cfg AppConfig

type AppConfig struct {
	Addr                 string
	Name                 string
	MaxRequestBodySize   int
	FileField            string
	AllowedHosts         []string
	PprofEnabled         bool
	PprofAddr            string
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	MaxConcurrentUploads int
	Language             string
	Recognizer           string
	WhisperURL           string
	WhisperModel         string
	WhisperAPIKey        string
	RecognizerTimeout    time.Duration
}

func init() {
	cfg, err := Load(viper.New())
	if err != nil {
		log.Panic(err)
	}

	Cfg = cfg
}

func Load(appViper *viper.Viper) (AppConfig, error) {
	return load(appViper, defaultConfigFile)
}

func load(appViper *viper.Viper, configFile string) (AppConfig, error) {
	appViper.AutomaticEnv()

	appViper.SetDefault(keyAddr, defaultServerAddr)
	appViper.SetDefault(keyName, defaultServerName)
	appViper.SetDefault(keyMaxRequestBodySize, defaultMaxRequestBodySize)
	appViper.SetDefault(keyFileField, defaultFileField)
	appViper.SetDefault(keyAllowedHosts, "")
	appViper.SetDefault(keyPprofEnabled, false)
	appViper.SetDefault(keyPprofAddr, defaultPprofAddr)
	appViper.SetDefault(keyReadTimeout, defaultReadTimeout)
	appViper.SetDefault(keyWriteTimeout, defaultWriteTimeout)
	appViper.SetDefault(keyIdleTimeout, defaultIdleTimeout)
	appViper.SetDefault(keyMaxConcurrentUploads, defaultMaxConcurrentUploads)
	appViper.SetDefault(keyLanguage, defaultLanguage)
	appViper.SetDefault(keyRecognizer, defaultRecognizer)
	appViper.SetDefault(keyWhisperURL, defaultWhisperURL)
	appViper.SetDefault(keyWhisperModel, defaultWhisperModel)
	appViper.SetDefault(keyWhisperAPIKey, "")
	appViper.SetDefault(keyRecognizerTimeout, defaultRecognizerTimeout)

	appViper.SetConfigFile(configFile)
	appViper.SetConfigType("env")

	if err := appViper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFoundErr) && !os.IsNotExist(err) {
			return AppConfig{}, fmt.Errorf("read %s: %w", configFile, err)
		}
	}

	cfg := AppConfig{
		Addr:                 appViper.GetString(keyAddr),
		Name:                 appViper.GetString(keyName),
		MaxRequestBodySize:   appViper.GetInt(keyMaxRequestBodySize),
		FileField:            appViper.GetString(keyFileField),
		AllowedHosts:         parseCSV(appViper.GetString(keyAllowedHosts)),
		PprofEnabled:         appViper.GetBool(keyPprofEnabled),
		PprofAddr:            appViper.GetString(keyPprofAddr),
		ReadTimeout:          appViper.GetDuration(keyReadTimeout),
		WriteTimeout:         appViper.GetDuration(keyWriteTimeout),
		IdleTimeout:          appViper.GetDuration(keyIdleTimeout),
		MaxConcurrentUploads: appViper.GetInt(keyMaxConcurrentUploads),
		Language:             strings.TrimSpace(appViper.GetString(keyLanguage)),
		Recognizer:           strings.ToLower(strings.TrimSpace(appViper.GetString(keyRecognizer))),
		WhisperURL:           strings.TrimSpace(appViper.GetString(keyWhisperURL)),
		WhisperModel:         strings.TrimSpace(appViper.GetString(keyWhisperModel)),
		WhisperAPIKey:        appViper.GetString(keyWhisperAPIKey),
		RecognizerTimeout:    appViper.GetDuration(keyRecognizerTimeout),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("invalid server config: addr is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("invalid server config: name is required")
	}
	if strings.TrimSpace(c.FileField) == "" {
		return errors.New("invalid server config: file_field is required")
	}
	if c.MaxRequestBodySize <= 0 {
		return errors.New("invalid server config: max_request_body_size must be positive")
	}
	if c.PprofEnabled && strings.TrimSpace(c.PprofAddr) == "" {
		return errors.New("invalid server config: pprof_addr is required when pprof_enabled=true")
	}
	if c.ReadTimeout <= 0 {
		return errors.New("invalid server config: read_timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("invalid server config: write_timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("invalid server config: idle_timeout must be positive")
	}
	if c.MaxConcurrentUploads <= 0 {
		return errors.New("invalid server config: max_concurrent_uploads must be positive")
	}

	switch c.Recognizer {
	case RecognizerMock:
	case RecognizerWhisper:
		if c.WhisperURL == "" {
			return errors.New("invalid server config: whisper_url is required when recognizer=whisper")
		}
		if c.WhisperModel == "" {
			return errors.New("invalid server config: whisper_model is required when recognizer=whisper")
		}
		if c.RecognizerTimeout < 0 {
			return errors.New("invalid server config: recognizer_timeout must not be negative")
		}
	default:
		return fmt.Errorf("invalid server config: unknown recognizer %q", c.Recognizer)
	}

	return nil
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		p := strings.TrimSpace(part)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
