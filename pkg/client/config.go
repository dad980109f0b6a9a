package client

import (
	"fmt"
	"os"
	"strings"

	"github.com/emiago/sipgo/sip"
	"gopkg.in/yaml.v3"
)

// Config конфигурация аккаунта для NewFromConfig
type Config struct {
	AccountURI string `yaml:"account_uri"`
	LocalURI   string `yaml:"local_uri"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`

	// UserAgent переопределяет User-Agent. Пустое значение - "soft_phone <version>".
	UserAgent      string   `yaml:"user_agent"`
	Version        string   `yaml:"version"`
	AllowedMethods []string `yaml:"allowed_methods"`

	Expires            uint32 `yaml:"expires"`
	RegisterInitialSeq uint32 `yaml:"register_initial_seq"`
	MessageInitialSeq  uint32 `yaml:"message_initial_seq"`
	ContentType        string `yaml:"content_type"`
}

// ParseConfig разбирает YAML конфигурацию и проверяет ее
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, serializationError("parse config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig читает конфигурацию из файла
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", filename, err)
	}
	return cfg, nil
}

// Validate проверяет обязательные поля и разбирает URI
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AccountURI) == "" {
		return buildError("validate config", fmt.Errorf("account_uri cannot be empty"))
	}
	if strings.TrimSpace(c.LocalURI) == "" {
		return buildError("validate config", fmt.Errorf("local_uri cannot be empty"))
	}
	if _, _, err := c.uris(); err != nil {
		return err
	}
	if c.RegisterInitialSeq > MaxSeq {
		return buildError("validate config", fmt.Errorf("register_initial_seq %d exceeds %d", c.RegisterInitialSeq, MaxSeq))
	}
	if c.MessageInitialSeq > MaxSeq {
		return buildError("validate config", fmt.Errorf("message_initial_seq %d exceeds %d", c.MessageInitialSeq, MaxSeq))
	}
	if (c.Username == "") != (c.Password == "") {
		return buildError("validate config", fmt.Errorf("username and password must be set together"))
	}
	return nil
}

func (c *Config) uris() (account, local sip.Uri, err error) {
	account, err = ParseURI(c.AccountURI)
	if err != nil {
		return account, local, err
	}
	if account.Host == "" {
		return account, local, buildError("validate config", fmt.Errorf("account_uri %q has no host", c.AccountURI))
	}
	local, err = ParseURI(c.LocalURI)
	if err != nil {
		return account, local, err
	}
	if local.Host == "" {
		return account, local, buildError("validate config", fmt.Errorf("local_uri %q has no host", c.LocalURI))
	}
	return account, local, nil
}

// HeaderConfig возвращает HeaderWriteConfig из конфигурации
func (c *Config) HeaderConfig() HeaderWriteConfig {
	version := c.Version
	if version == "" {
		version = Version
	}
	hc := DefaultHeaderWriteConfig(version)
	if c.UserAgent != "" {
		hc.UserAgent = c.UserAgent
	}
	if methods := parseMethods(c.AllowedMethods); methods != nil {
		hc.AllowedMethods = methods
	}
	return hc
}

func (c *Config) registrationOptions() []RegistrationOption {
	var opts []RegistrationOption
	if c.Username != "" {
		opts = append(opts, WithCredentials(c.Username, c.Password))
	}
	if c.Expires > 0 {
		opts = append(opts, WithExpires(c.Expires))
	}
	if c.RegisterInitialSeq > 0 {
		opts = append(opts, WithRegistrationInitialSeq(c.RegisterInitialSeq))
	}
	return opts
}

func (c *Config) messageOptions() []MessageOption {
	var opts []MessageOption
	if c.ContentType != "" {
		opts = append(opts, WithContentType(c.ContentType))
	}
	if c.MessageInitialSeq > 0 {
		opts = append(opts, WithMessageInitialSeq(c.MessageInitialSeq))
	}
	return opts
}
