package util

import (
	"github.com/berfenger/oigshield2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		OIGCloud: config.OIGCloudConfig{
			Username:             "user@example.com",
			Password:             "secret",
			PollIntervalMillis:   200,
			RequestTimeoutMillis: 2000,
		},
		Shield: config.ShieldConfig{
			PollIntervalSeconds:    1,
			CommandTimeoutMinutes:  1,
			DispatchTimeoutSeconds: 2,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "oigshield_test",
		},
		Port: 8080,
	}
}
