package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	coreconfig "github.com/AzielCF/az-chat/core/config"
	coreDB "github.com/AzielCF/az-chat/core/database"
	"github.com/AzielCF/az-chat/infrastructure/valkey"
	"github.com/AzielCF/az-chat/realtime"
	"github.com/AzielCF/az-chat/realtime/application"
	"github.com/AzielCF/az-chat/realtime/domain/chat"
	"github.com/AzielCF/az-chat/realtime/domain/session"
	"github.com/AzielCF/az-chat/realtime/infrastructure/api"
	"github.com/AzielCF/az-chat/realtime/infrastructure/socket"
	"github.com/AzielCF/az-chat/realtime/repository"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a realtime conversation session",
	Long: `Opens a realtime session for the configured user: connects the
live channel, tracks presence and exposes a local status API.`,
	Run: runSession,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// logSink renders notifications into the process log. A desktop or web
// embedding replaces it with a real system-notification bridge.
type logSink struct{}

func (logSink) Show(n application.Notification) error {
	logrus.WithFields(logrus.Fields{
		"title":   n.Title,
		"peer_id": n.PeerID,
		"match":   n.Match,
	}).Info("[Notify] " + n.Body)
	return nil
}

type logNavigator struct{}

func (logNavigator) OpenConversation(peerID string) {
	logrus.WithField("peer_id", peerID).Info("[Notify] Navigate to conversation")
}

func (logNavigator) OpenMatches() {
	logrus.Info("[Notify] Navigate to matches")
}

func runSession(_ *cobra.Command, _ []string) {
	cfg := coreconfig.Global
	ctx := context.Background()

	identity := session.StaticProvider{Identity: session.Identity{
		UserID: cfg.Session.UserID,
		Token:  cfg.Session.Token,
	}}

	apiClient := api.NewClient(cfg.Backend.BaseURL, identity)

	// Presence store: Valkey when configured, otherwise in-process.
	var presenceStore chat.PresenceStore
	if cfg.Database.ValkeyEnabled {
		vkClient, err := valkey.NewClient(valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			logrus.Fatalf("failed to connect to valkey: %v", err)
		}
		defer vkClient.Close()
		// Entries self-expire a grace period after the local expiry
		// timer would have flipped the peer offline anyway.
		presenceStore = repository.NewValkeyPresenceStore(vkClient, cfg.Realtime.PresenceExpiry+cfg.Realtime.OfflineGrace)
	} else {
		presenceStore = repository.NewMemoryPresenceStore()
	}

	// Transcript cache persists across restarts.
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Name), 0o755); err != nil {
		logrus.Fatalf("failed to prepare storage dir: %v", err)
	}
	db, err := coreDB.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalf("failed to open database: %v", err)
	}
	transcriptStore := repository.NewGormTranscriptStore(db, cfg.Session.UserID)
	if err := transcriptStore.AutoMigrate(); err != nil {
		logrus.Fatalf("failed to migrate transcript tables: %v", err)
	}

	manager := realtime.NewManager(identity, apiClient, socket.New, presenceStore, transcriptStore, realtime.Options{
		SocketURL:         cfg.Backend.SocketURL,
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
		PresenceExpiry:    cfg.Realtime.PresenceExpiry,
		OfflineGrace:      cfg.Realtime.OfflineGrace,
		TypingIdle:        cfg.Realtime.TypingIdle,
		Reconnect: application.ReconnectPolicy{
			MaxAttempts: cfg.Realtime.ReconnectMaxAttempts,
			BaseDelay:   cfg.Realtime.ReconnectBaseDelay,
			MaxDelay:    cfg.Realtime.ReconnectMaxDelay,
		},
		Workers:          cfg.WorkerPool.Size,
		WorkerQueue:      cfg.WorkerPool.QueueSize,
		NotificationSink: logSink{},
		Navigator:        logNavigator{},
	})
	manager.Notifier().SetPermission(application.PermissionGranted)
	manager.OnAuthRedirect = func(reason string) {
		logrus.WithField("reason", reason).Error("[Run] Session requires re-authentication")
	}

	if err := manager.Start(ctx); err != nil {
		logrus.Fatalf("failed to start realtime session: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "Az-Chat Realtime Engine",
		DisableStartupMessage: false,
	})
	app.Use(requestid.New())
	app.Use(recover.New())

	app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"channel_status": manager.Status(),
			"generation":     manager.Generation(),
			"pool":           manager.PoolStats(),
			"settings":       coreconfig.GetAllSettings(),
		})
	})
	app.Get("/conversations", func(c *fiber.Ctx) error {
		return c.JSON(manager.Conversations())
	})
	app.Get("/transcript", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"messages":    manager.Transcript(),
			"peer_typing": manager.PeerTyping(),
		})
	})

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[Run] Termination signal received, shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		manager.Stop(shutdownCtx)

		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[Run] Error during Fiber shutdown: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}
}
