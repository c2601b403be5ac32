package config

import (
	"testing"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/core/shield"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestCheckMQTTTopic(t *testing.T) {

	assert := assert.New(t)

	topic, err := CheckMQTTTopic("OIGShield")
	assert.NoError(err)
	assert.Equal("oigshield", topic)

	_, err = CheckMQTTTopic("oig/shield")
	assert.Error(err)
}

func TestShieldConfig(t *testing.T) {

	assert := assert.New(t)

	cfg := ShieldConfig{PollIntervalSeconds: 5, CommandTimeoutMinutes: 2}.ShieldConfig()
	assert.Equal(5*time.Second, cfg.PollInterval)
	assert.Equal(2*time.Minute, cfg.CommandTimeout)
	assert.Equal(shield.DefaultDispatchTimeout, cfg.DispatchTimeout)

	assert.Equal(shield.DefaultConfig(), ShieldConfig{}.ShieldConfig())
}

func TestParseLogLevel(t *testing.T) {

	assert := assert.New(t)

	assert.Equal(zapcore.DebugLevel, ParseLogLevel("trace"))
	assert.Equal(zapcore.WarnLevel, ParseLogLevel("WARN"))
	assert.Equal(zapcore.InfoLevel, ParseLogLevel("verbose"))
}

func validConfig() Config {
	return Config{
		OIGCloud: OIGCloudConfig{
			Username:             "user@example.com",
			Password:             "secret",
			PollIntervalMillis:   30000,
			RequestTimeoutMillis: 10000,
		},
		Shield: ShieldConfig{PollIntervalSeconds: 15, CommandTimeoutMinutes: 15, DispatchTimeoutSeconds: 10},
		MQTT:   MQTTConfig{BaseTopic: "OIGShield", HADiscoveryTopic: "homeassistant"},
	}
}

func TestValidate(t *testing.T) {

	assert := assert.New(t)

	cfg := validConfig()
	assert.NoError(cfg.Validate())
	assert.Equal("oigshield", cfg.MQTT.BaseTopic)

	cfg = validConfig()
	cfg.OIGCloud.PollIntervalMillis = 5000
	assert.ErrorContains(cfg.Validate(), "poll_interval_millis")

	cfg = validConfig()
	cfg.OIGCloud.Password = ""
	assert.ErrorContains(cfg.Validate(), "password")

	cfg = validConfig()
	cfg.Shield.DispatchTimeoutSeconds = 0
	assert.ErrorContains(cfg.Validate(), "dispatch_timeout_seconds")

	cfg = validConfig()
	cfg.MQTT.HADiscoveryTopic = "home/assistant"
	assert.ErrorContains(cfg.Validate(), "discovery topic")
}
