// Command servicehost runs the Nacos-integrated microservice host:
// loads configuration, registers the sample services it ships with,
// and serves line-framed JSON-RPC until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"servicehost/internal/config"
	"servicehost/internal/host"
	"servicehost/internal/logging"
	"servicehost/internal/registrar"
	"servicehost/internal/registryadapter"
	"servicehost/internal/samples"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "", "path to the host config file")
}

// factories maps every ServiceSpec.ServiceName this binary knows how to
// construct. The registrar fails startup fatally for any enabled spec
// naming something not in this table (spec §4.B).
func factories() map[string]registrar.Factory {
	return map[string]registrar.Factory{
		"Demo":  func() interface{} { return &samples.Demo{} },
		"Login": func() interface{} { return &samples.Login{} },
	}
}

func main() {
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("init", "servicehost starting", zap.Int("port", cfg.Instance.Port), zap.String("registry", cfg.Server.Host))

	specs := make(map[string]registrar.Spec, len(cfg.Service))
	for k, s := range cfg.Service {
		specs[k] = registrar.Spec{Enable: s.Enable, ServiceName: s.ServiceName, Namespace: s.Namespace, Contract: s.Contract}
	}
	reg, err := registrar.New(specs, factories())
	if err != nil {
		log.Fatal("init", "failed to build service registry", zap.Error(err))
	}

	adapter := registryadapter.New(cfg.Server.Host, cfg.Server.Username, cfg.Server.Password, log)
	h := host.New(cfg, log, adapter, reg)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("exit", "signal received, shutting down")
		cancel()
	}()

	if err := h.Run(ctx); err != nil {
		log.Fatal("error", "host exited with error", zap.Error(err))
	}
	log.Info("exit", "servicehost stopped")
}
