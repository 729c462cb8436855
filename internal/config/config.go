// Package config loads the static cycle configuration file, parsed with
// gopkg.in/yaml.v3 the way roach88-nysm's harness scenarios and
// animus-go's platform config are, with environment-variable overrides
// applied afterward through internal/envkit.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"deltasync/internal/baseline"
	"deltasync/internal/deltaerr"
	"deltasync/internal/envkit"
)

// EngineChoice is the parsed value of the config file's engine key. Nothing
// in this module reads it: a cycle's strategy follows the baseline backend
// alone (RelationalDiff for a relational store, SetDiff otherwise), so
// "set" and "relational" do not override that choice.
type EngineChoice string

const (
	EngineAuto       EngineChoice = "auto"
	EngineSet        EngineChoice = "set"
	EngineRelational EngineChoice = "relational"
)

// Config is the top-level shape of the cycle configuration file.
type Config struct {
	ClientID baseline.ClientID `yaml:"clientId"`
	Baseline BaselineConfig    `yaml:"baseline"`
	Engine   EngineChoice      `yaml:"engine"`
}

// BaselineConfig mirrors baseline.Config's shape in YAML-tagged form.
type BaselineConfig struct {
	Backend      string             `yaml:"backend"`
	Filesystem   FilesystemConfig   `yaml:"filesystem"`
	ObjectBucket ObjectBucketConfig `yaml:"objectBucket"`
	Relational   RelationalConfig   `yaml:"relational"`
}

type FilesystemConfig struct {
	Path string `yaml:"path"`
}

type ObjectBucketConfig struct {
	BucketName string `yaml:"bucketName"`
	KeyPrefix  string `yaml:"keyPrefix"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	UseSSL     bool   `yaml:"useSSL"`
}

type RelationalConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Filename string `yaml:"filename"`
	SSL      string `yaml:"ssl"`
	AutoSync bool   `yaml:"autoSync"`
	Logging  bool   `yaml:"logging"`
}

// Load reads and parses the YAML file at path, then applies environment
// overrides for secrets that should not live in a checked-in file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, deltaerr.Wrap(deltaerr.ConfigError, "read config file", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, deltaerr.Wrap(deltaerr.ConfigError, "parse config file", err)
	}

	applyEnvOverrides(&cfg)

	if cfg.ClientID == "" {
		return Config{}, deltaerr.New(deltaerr.ConfigError, "clientId is required")
	}
	return cfg, nil
}

// applyEnvOverrides lets DELTASYNC_DB_PASSWORD and object-bucket
// credentials come from the environment instead of the config file.
func applyEnvOverrides(cfg *Config) {
	cfg.Baseline.Relational.Password = envkit.String("DELTASYNC_DB_PASSWORD", cfg.Baseline.Relational.Password)
	cfg.Baseline.ObjectBucket.AccessKey = envkit.String("DELTASYNC_ACCESS_KEY", cfg.Baseline.ObjectBucket.AccessKey)
	cfg.Baseline.ObjectBucket.SecretKey = envkit.String("DELTASYNC_SECRET_KEY", cfg.Baseline.ObjectBucket.SecretKey)
}

// ToBaselineConfig converts the YAML-tagged shape into the baseline
// package's factory input.
func (c Config) ToBaselineConfig() baseline.Config {
	out := baseline.Config{Backend: c.Baseline.Backend}
	out.Filesystem.Path = c.Baseline.Filesystem.Path
	out.ObjectBucket.BucketName = c.Baseline.ObjectBucket.BucketName
	out.ObjectBucket.KeyPrefix = c.Baseline.ObjectBucket.KeyPrefix
	out.ObjectBucket.Region = c.Baseline.ObjectBucket.Region
	out.ObjectBucket.Endpoint = c.Baseline.ObjectBucket.Endpoint
	out.ObjectBucket.AccessKey = c.Baseline.ObjectBucket.AccessKey
	out.ObjectBucket.SecretKey = c.Baseline.ObjectBucket.SecretKey
	out.ObjectBucket.UseSSL = c.Baseline.ObjectBucket.UseSSL
	out.Relational = baseline.RelationalConfig{
		Type:     c.Baseline.Relational.Type,
		Host:     c.Baseline.Relational.Host,
		Port:     c.Baseline.Relational.Port,
		Username: c.Baseline.Relational.Username,
		Password: c.Baseline.Relational.Password,
		Database: c.Baseline.Relational.Database,
		Filename: c.Baseline.Relational.Filename,
		SSL:      c.Baseline.Relational.SSL == "require",
		Logging:  c.Baseline.Relational.Logging,
	}
	return out
}
