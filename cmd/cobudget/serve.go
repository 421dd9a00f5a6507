package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/phillip/cobudget-go/config"
	"github.com/phillip/cobudget-go/controllers"
	"github.com/phillip/cobudget-go/routes"
	"github.com/phillip/cobudget-go/services"
	"github.com/phillip/cobudget-go/store"
	"github.com/phillip/cobudget-go/utils"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and GraphQL server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if port != "" {
				cfg.Port = port
			}
			return serve(cmd.Context(), cfg, root.store)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, storeKind string) error {
	if err := cfg.Validate(storeKind == "mongo"); err != nil {
		return err
	}
	utils.SetupLogger(cfg.Environment, cfg.LogLevel)
	cfg.LogSummary()

	if err := utils.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, storeKind)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	opts := services.Options{
		Store:             st,
		Mailer:            newMailer(cfg),
		JWTSecret:         cfg.JWTSecret,
		AppURL:            cfg.AppURL,
		InviteConcurrency: cfg.InviteConcurrency,
	}

	var uploader controllers.ImageUploader
	if cfg.Cloudinary.Enabled() {
		cld, err := utils.NewCloudinary(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		if err != nil {
			return err
		}
		uploader = cld
		opts.Images = cld
	}

	if cfg.Redis.Enabled {
		client := utils.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		opts.Limiter = utils.NewRedisLimiter(client, "cobudget", cfg.MagicLinkLimit, cfg.MagicLinkWindow)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	routes.SetupRoutes(r, cfg, services.New(opts), uploader)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("port", cfg.Port).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, kind string) (store.Store, error) {
	if kind == "memory" {
		logrus.Warn("Using in-memory store; data is lost on exit")
		return store.NewMemory(), nil
	}
	if err := cfg.ConnectMongo(ctx); err != nil {
		return nil, err
	}
	return store.NewMongo(cfg.MongoClient, cfg.DBName, cfg.MongoTransactions), nil
}

// newMailer prefers the ZeptoMail API, then SMTP, and otherwise only logs.
func newMailer(cfg *config.Config) utils.Mailer {
	switch {
	case cfg.Zepto.Enabled():
		return utils.NewZeptoMailer(cfg.Zepto.APIURL, cfg.Zepto.APIKey, cfg.EmailFrom, cfg.FromName)
	case cfg.SMTP.Enabled():
		return utils.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.EmailFrom)
	default:
		logrus.Warn("No mail transport configured; emails are only logged")
		return utils.LogMailer{}
	}
}
