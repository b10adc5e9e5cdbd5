// Command provider serves mock scraping endpoints for local development.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
)

func main() {
	port := getEnv("PORT", "9001")
	failureRate := getFloat("FAILURE_RATE", 0.1)

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{TimeFormat: "15:04:05"}))

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Method(http.MethodPost, "/scrape-booking", newScraper("booking", profile{
		minLatency:  300 * time.Millisecond,
		maxLatency:  1500 * time.Millisecond,
		failureRate: failureRate,
		noRoomsRate: 0.1,
		soldOutRate: 0.05,
		currency:    getEnv("BOOKING_CURRENCY", "ZAR"),
	}, logger))
	r.Method(http.MethodPost, "/scrape-trip", newScraper("trip", profile{
		minLatency:  200 * time.Millisecond,
		maxLatency:  2500 * time.Millisecond,
		failureRate: failureRate * 1.5,
		noRoomsRate: 0.05,
		soldOutRate: 0.1,
		currency:    getEnv("TRIP_CURRENCY", "USD"),
	}, logger))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write healthz response", "error", err)
		}
	})

	// Configure server
	addr := ":" + port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("mock scraper listening", "addr", addr, "failure_rate", failureRate)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return v
}
