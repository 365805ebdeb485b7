package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"community-portal/verification-backend/internal/commands"
	"community-portal/verification-backend/internal/notifications"
	"community-portal/verification-backend/internal/notifications/websocket"
	"community-portal/verification-backend/internal/platform"
	"community-portal/verification-backend/internal/platform/discord"
	"community-portal/verification-backend/internal/retry"
	"community-portal/verification-backend/internal/roles"
	"community-portal/verification-backend/internal/verification"
	"community-portal/verification-backend/pkg/security"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to Discord and run the verification workflow",
	Long: `Connect to Discord, run the verification workflow, flush the
notification queue periodically and serve the admin API.

The admin API is only started when JWT_SECRET is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return serve(a)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(a *app) error {
	cfg, logger := a.cfg, a.logger
	for _, warning := range cfg.Validate() {
		logger.Warn("Configuration incomplete", zap.String("warning", warning))
	}
	if cfg.Discord.Token == "" {
		return errors.New("DISCORD_TOKEN is required to serve")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewManager(logger)
	defer hub.Close()

	queue, err := a.queue(ctx)
	if err != nil {
		return err
	}
	queue.SetPublisher(hub)
	scheduler := notifications.NewScheduler(queue, cfg.Notifications.FlushInterval(), logger)

	repo := a.repository()
	backuper, err := a.backuper(ctx, repo)
	if err != nil {
		return err
	}
	audit, err := a.auditLog()
	if err != nil {
		return err
	}

	adapter, err := discord.NewAdapter(cfg.Discord.Token, logger)
	if err != nil {
		return err
	}
	waiter := platform.NewWaiter()
	resolver := roles.NewResolver(adapter)
	ops := retry.New(adapter, logger)
	settings := cfg.VerificationSettings()

	coordinator := verification.NewCoordinator(verification.CoordinatorDeps{
		Adapter:   adapter,
		Waiter:    waiter,
		Repo:      repo,
		Resolver:  resolver,
		Ops:       ops,
		Notifier:  queue,
		Publisher: hub,
		Logger:    logger,
	}, settings)
	authorizer := verification.NewAuthorizer(resolver, settings.Roles.Verifier)
	reviews := verification.NewReviewHandler(verification.ReviewDeps{
		Adapter:    adapter,
		Waiter:     waiter,
		Repo:       repo,
		Resolver:   resolver,
		Authorizer: authorizer,
		Ops:        ops,
		Notifier:   queue,
		Publisher:  hub,
		Audit:      audit,
		Logger:     logger,
	}, settings)
	listener := verification.NewListener(coordinator, reviews, waiter,
		verification.NewReactionTargetResolver(adapter, repo), "", logger)

	registry := commands.NewRegistry(logger)
	if err := commands.RegisterBuiltins(registry, commands.Deps{
		Adapter:     adapter,
		Queue:       queue,
		Requests:    listener,
		Destination: coordinator,
		Authorizer:  authorizer,
		Repo:        repo,
		Backuper:    backuper,
		Ops:         ops,
		DataDir:     cfg.Storage.DataDir,
		OwnerID:     cfg.Discord.OwnerID,
		Logger:      logger,
	}); err != nil {
		return err
	}

	var srv *http.Server
	if cfg.Server.Enabled && cfg.Security.JWTSecret != "" {
		srv = &http.Server{
			Addr:         cfg.Server.GetServerAddr(),
			Handler:      adminRouter(security.NewTokenValidator(cfg.Security.JWTSecret), queue, repo, audit, backuper, hub, logger),
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Admin API stopped", zap.Error(err))
			}
		}()
		logger.Info("Admin API started", zap.String("addr", srv.Addr))
	}

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start notification scheduler: %w", err)
	}
	defer scheduler.Stop()

	gateway := discord.NewGateway(adapter, listener, registry, cfg.Discord.ApplicationID, cfg.Discord.GuildID, logger)
	if err := gateway.Open(ctx); err != nil {
		return err
	}
	logger.Info("Verification bot running")

	<-ctx.Done()
	logger.Info("Shutting down...")

	if err := gateway.Close(); err != nil {
		logger.Warn("Gateway close failed", zap.Error(err))
	}
	// running workflows observe ctx and unwind
	listener.Wait()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Admin API forced to shutdown", zap.Error(err))
		}
	}
	logger.Info("Bot exiting", zap.Int("pending_notifications", queue.Len()))
	return nil
}

func adminRouter(tokens *security.TokenValidator, queue *notifications.Queue, repo verification.Repository, audit verification.AuditLog, backuper *verification.Backuper, hub *websocket.Manager, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	api := router.Group("/api/v1")
	api.Use(tokens.Middleware())
	{
		notifications.NewHandler(queue, logger).RegisterRoutes(api)
		verification.NewHandler(repo, audit, backuper, logger).RegisterRoutes(api)
		hub.RegisterRoutes(api)
	}
	return router
}
