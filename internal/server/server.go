package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/config"
	"github.com/berfenger/oigshield2mqtt/internal/core/service"
	"github.com/berfenger/oigshield2mqtt/internal/metrics"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

type Server struct {
	port        uint
	httpLog     bool
	rootContext *actor.RootContext
	masterActor *actor.PID
	catalog     *service.CommandCatalog
	metrics     *metrics.Metrics
}

// NewServer builds the HTTP API. metrics may be nil, in which case /metrics is not served.
func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID,
	catalog *service.CommandCatalog, metrics *metrics.Metrics) *http.Server {
	NewServer := &Server{
		port:        cfg.Port,
		rootContext: rootContext,
		masterActor: masterActor,
		httpLog:     cfg.HttpLog,
		catalog:     catalog,
		metrics:     metrics,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
