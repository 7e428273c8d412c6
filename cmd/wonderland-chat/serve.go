package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gwi.com/wonderland-chat/internal/api"
	"gwi.com/wonderland-chat/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the conversation API over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("port", "", "HTTP port (default 8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	closer, err := logging.Setup(logging.Options{
		Level:  appConfig.LogLevel,
		Format: appConfig.LogFormat,
		Out:    os.Stderr,
		File:   appConfig.LogFile,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	port := appConfig.HTTPPort
	if p, _ := cmd.Flags().GetString("port"); p != "" {
		port = p
	}

	a, err := buildApp(cmd.Context(), appConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	router := api.NewRouter(api.NewAPIHandler(a.repo, a.chats, a.list), a.metrics.Handler())

	serverAddr := fmt.Sprintf(":%s", port)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: appConfig.RAGTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", serverAddr).Msg("Starting server. Press Ctrl+C to quit.")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrapf(err, "could not listen on %s", serverAddr)
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info().Msg("Shutting down server...")

	// Sends still resolving after this are awaited by the deferred Close.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}

	log.Info().Msg("Server exiting gracefully")
	return nil
}
