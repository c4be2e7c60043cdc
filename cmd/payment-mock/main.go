package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jogardn/food-storefront/internal/httpapi"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	v := viper.New()
	v.SetDefault("PAYMENT_MOCK_PORT", "8090")
	v.SetDefault("PAYMENT_MOCK_PUBLIC_URL", "http://localhost:8090")
	v.SetDefault("STOREFRONT_WEBHOOK_URL", "http://localhost:8080/webhooks/stripe")
	v.SetDefault("LOG_LEVEL", "info")
	v.AutomaticEnv()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(v.GetString("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}

	secret := v.GetString("STRIPE_WEBHOOK_SECRET")
	if secret == "" {
		logger.Fatal("STRIPE_WEBHOOK_SECRET must be set to sign webhooks")
	}

	mock := NewMockServer(
		strings.TrimRight(v.GetString("PAYMENT_MOCK_PUBLIC_URL"), "/"),
		v.GetString("STOREFRONT_WEBHOOK_URL"),
		secret,
		logger,
	)

	router := mock.Router()
	router.Use(httpapi.Logging(logger, nil))

	port := v.GetString("PAYMENT_MOCK_PORT")
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", port).Info("Starting payment mock")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down payment mock...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
}
