// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

// chatkit-devserver is an in-memory chat backend for local development
// and integration testing. It serves the full REST surface and the
// websocket live channel on one port, backed by a shared in-memory
// store, so a chatkit client works against it with no external
// services.
//
// Authentication is the development scheme: the bearer token is taken
// verbatim as the user ID. Run two clients with different tokens to
// chat between them:
//
//	chatkit-devserver --listen :8080
//	chatkit --user alice --config alice.yaml
//	chatkit --user bob --config bob.yaml
//
// All state vanishes on restart.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var listenAddr string
	var debug bool

	flagSet := pflag.NewFlagSet("chatkit-devserver", pflag.ContinueOnError)
	flagSet.StringVar(&listenAddr, "listen", ":8080", "address to listen on")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	memory := newStore()
	liveHub := newHub(memory, logger)
	rest := &api{store: memory, hub: liveHub, logger: logger}

	router := mux.NewRouter()
	router.HandleFunc("/channel", liveHub.ServeChannel)
	rest.Routes(router)

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.ListenAndServe()
	}()

	logger.Info("devserver running", "listen", listenAddr)

	select {
	case err := <-serveDone:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-serveDone; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
