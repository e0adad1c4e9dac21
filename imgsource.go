package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/thraxil/imgsource/store"
)

func main() {
	logger := newLogger(os.Stderr)
	_ = logger.Log("level", "INFO", "msg", "starting up")

	var configfile string
	flag.StringVar(&configfile, "config", "", "JSON or YAML config file (default: imgsource/config.json in the XDG config dirs)")
	flag.Parse()

	loadEnvFiles(logger, ".env")
	configfile = findConfig(configfile)
	f, err := loadConfig(configfile)
	if err != nil {
		_ = logger.Log("level", "ERR", "msg", "could not load config", "error", err.Error())
		os.Exit(1)
	}
	if configfile == "" {
		_ = logger.Log("level", "INFO", "msg", "no config file, using defaults")
	}
	siteconfig := f.MyConfig()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	src, cleanup, err := siteconfig.Source(logger, reg)
	if err != nil {
		_ = logger.Log("level", "ERR", "msg", "could not build source", "error", err.Error())
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if siteconfig.VerifierEnabled() {
		v, err := store.NewVerifier(siteconfig.StoreDirectory, src, logger, reg)
		if err != nil {
			_ = logger.Log("level", "ERR", "msg", "could not start verifier", "error", err.Error())
			os.Exit(1)
		}
		go v.Run(ctx, siteconfig.VerifierSleep)
	}

	policy := siteconfig.Policy()
	sctx := sitecontext{
		Cfg:       &siteconfig,
		SL:        logger,
		FetchView: NewFetchView(src, policy, logger),
		InfoView:  NewInfoView(src, policy, siteconfig.MaxInfoBytes, logger),
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", siteconfig.Port),
		Handler:           Log(routes(sctx, reg), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	// everything is ready, let's go
	_ = logger.Log("level", "INFO", "msg", "listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_ = logger.Log("level", "ERR", "msg", "server failed", "error", err.Error())
	}
}
