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
	defaultConfigFile     = ".env.client"
	defaultURL            = "http://127.0.0.1:5000/transcrever"
	defaultFilePath       = "/tmp/Teste.ogg"
	defaultFormFieldName  = "audio"
	defaultRequestTimeout = time.Duration(0)

	keyURL            = "TRANSCRIBE_CLIENT_URL"
	keyFile           = "TRANSCRIBE_CLIENT_FILE"
	keyField          = "TRANSCRIBE_CLIENT_FIELD"
	keyRequestTimeout = "TRANSCRIBE_CLIENT_REQUEST_TIMEOUT"
)

var Cfg AppConfig

// AppConfig is the single upload the client performs. A zero RequestTimeout
// leaves the request without a client-side deadline.
type AppConfig struct {
	URL            string
	FilePath       string
	FieldName      string
	RequestTimeout time.Duration
}

func init() {
	cfg, err := Load(viper.New())
	if err != nil {
		log.Panic(err)
	}

	Cfg = cfg
}

// Load reads the client config from the environment and an optional
// .env.client file in the working directory.
func Load(appViper *viper.Viper) (AppConfig, error) {
	return load(appViper, defaultConfigFile)
}

func load(appViper *viper.Viper, configFile string) (AppConfig, error) {
	appViper.AutomaticEnv()

	appViper.SetDefault(keyURL, defaultURL)
	appViper.SetDefault(keyFile, defaultFilePath)
	appViper.SetDefault(keyField, defaultFormFieldName)
	appViper.SetDefault(keyRequestTimeout, defaultRequestTimeout)

	appViper.SetConfigFile(configFile)
	appViper.SetConfigType("env")

	if err := appViper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFoundErr) && !os.IsNotExist(err) {
			return AppConfig{}, fmt.Errorf("read %s: %w", configFile, err)
		}
	}

	cfg := AppConfig{
		URL:            strings.TrimSpace(appViper.GetString(keyURL)),
		FilePath:       strings.TrimSpace(appViper.GetString(keyFile)),
		FieldName:      strings.TrimSpace(appViper.GetString(keyField)),
		RequestTimeout: appViper.GetDuration(keyRequestTimeout),
	}

	if cfg.URL == "" {
		return AppConfig{}, errors.New("invalid client config: url is required")
	}
	// Existence is not checked here; a missing file is reported by the upload.
	if cfg.FilePath == "" {
		return AppConfig{}, errors.New("invalid client config: file is required")
	}
	if cfg.FieldName == "" {
		return AppConfig{}, errors.New("invalid client config: field is required")
	}
	if cfg.RequestTimeout < 0 {
		return AppConfig{}, errors.New("invalid client config: request_timeout must not be negative")
	}

	return cfg, nil
}
