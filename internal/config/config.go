package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/core/shield"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	OIGCloud OIGCloudConfig `mapstructure:"oig_cloud"`
	Shield   ShieldConfig   `mapstructure:"shield"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Port     uint           `mapstructure:"port"`
	HttpLog  bool           `mapstructure:"http_log"`
}

type OIGCloudConfig struct {
	Username             string
	Password             string
	BaseURL              string `mapstructure:"base_url"`
	PollIntervalMillis   uint32 `mapstructure:"poll_interval_millis"`
	RequestTimeoutMillis uint32 `mapstructure:"request_timeout_millis"`
}

func (c OIGCloudConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c OIGCloudConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMillis) * time.Millisecond
}

type ShieldConfig struct {
	PollIntervalSeconds    uint32 `mapstructure:"poll_interval_seconds"`
	CommandTimeoutMinutes  uint32 `mapstructure:"command_timeout_minutes"`
	DispatchTimeoutSeconds uint32 `mapstructure:"dispatch_timeout_seconds"`
}

// ShieldConfig converts to the shield's own config. Zero values fall back to
// the shield defaults.
func (c ShieldConfig) ShieldConfig() shield.Config {
	cfg := shield.DefaultConfig()
	if c.PollIntervalSeconds > 0 {
		cfg.PollInterval = time.Duration(c.PollIntervalSeconds) * time.Second
	}
	if c.CommandTimeoutMinutes > 0 {
		cfg.CommandTimeout = time.Duration(c.CommandTimeoutMinutes) * time.Minute
	}
	if c.DispatchTimeoutSeconds > 0 {
		cfg.DispatchTimeout = time.Duration(c.DispatchTimeoutSeconds) * time.Second
	}
	return cfg
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// ParseLogLevel maps the configured level name to zap. "trace" is an alias of
// debug and unknown names fall back to info.
func ParseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	}
	return zapcore.InfoLevel
}

// Validate normalizes the MQTT topics in place and checks the bounds of the
// polling and timeout settings.
func (cfg *Config) Validate() error {
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	switch {
	case cfg.OIGCloud.Username == "" || cfg.OIGCloud.Password == "":
		return errors.New("config params oig_cloud.username and oig_cloud.password are required")
	case cfg.OIGCloud.PollIntervalMillis < 10000:
		return errors.New("config param oig_cloud.poll_interval_millis should be >= 10000")
	case cfg.OIGCloud.RequestTimeoutMillis < 1000:
		return errors.New("config param oig_cloud.request_timeout_millis should be >= 1000")
	case cfg.Shield.PollIntervalSeconds < 1:
		return errors.New("config param shield.poll_interval_seconds should be >= 1")
	case cfg.Shield.CommandTimeoutMinutes < 1:
		return errors.New("config param shield.command_timeout_minutes should be >= 1")
	case cfg.Shield.DispatchTimeoutSeconds < 1:
		return errors.New("config param shield.dispatch_timeout_seconds should be >= 1")
	}
	return nil
}
