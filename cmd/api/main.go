package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/oigshield2mqtt/internal/adapter/actor"
	"github.com/berfenger/oigshield2mqtt/internal/config"
	"github.com/berfenger/oigshield2mqtt/internal/core/actor"
	"github.com/berfenger/oigshield2mqtt/internal/core/domain"
	"github.com/berfenger/oigshield2mqtt/internal/core/service"
	"github.com/berfenger/oigshield2mqtt/internal/metrics"
	"github.com/berfenger/oigshield2mqtt/internal/server"
	"github.com/berfenger/oigshield2mqtt/internal/util/actorutil"
	"github.com/berfenger/oigshield2mqtt/pkg/oigcloud"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	m := metrics.New()
	catalog := service.NewCommandCatalog(service.NewNormalizer())

	// the cloud client is shared across cloud actor restarts to keep its session
	cloudProv := cloudActorProvider(cfg, m, logger)

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, catalog, m, cloudProv, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid, catalog, m)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => OIGSHIELD_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("OIGSHIELD_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("oigshield")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = config.ParseLogLevel(viper.GetString("log_level"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func cloudActorProvider(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) actor.CloudActorProvider {
	client := oigcloud.NewClient(cfg.OIGCloud.Username, cfg.OIGCloud.Password,
		oigcloud.WithBaseURL(cfg.OIGCloud.BaseURL),
		oigcloud.WithTimeout(cfg.OIGCloud.RequestTimeout()),
		oigcloud.WithLogger(logger),
		oigcloud.WithRequestHook(m.RecordCloudRequest),
		oigcloud.WithBreakerHook(m.RecordBreakerState))

	return func() *adactor.CloudActor {
		return adactor.NewCloudActor(client, cfg.OIGCloud.RequestTimeout(), logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("oig_cloud.username", "")
	viper.SetDefault("oig_cloud.password", "")
	viper.SetDefault("oig_cloud.base_url", "https://www.oigpower.cz/cez/")
	viper.SetDefault("oig_cloud.poll_interval_millis", 30000)
	viper.SetDefault("oig_cloud.request_timeout_millis", 10000)
	viper.SetDefault("shield.poll_interval_seconds", 15)
	viper.SetDefault("shield.command_timeout_minutes", 15)
	viper.SetDefault("shield.dispatch_timeout_seconds", 10)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "oigshield")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.OIGCloud.Username = "*redacted*"
	cfg.OIGCloud.Password = "*redacted*"
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
