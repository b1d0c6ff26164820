package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rpoole444/cosLivewire-BE/internal/api"
	"github.com/rpoole444/cosLivewire-BE/internal/billing"
	"github.com/rpoole444/cosLivewire-BE/internal/config"
	"github.com/rpoole444/cosLivewire-BE/internal/email"
	"github.com/rpoole444/cosLivewire-BE/internal/invites"
	"github.com/rpoole444/cosLivewire-BE/internal/logging"
	"github.com/rpoole444/cosLivewire-BE/internal/store"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "groovewire",
	Short:   "GrooveWire - events and artist directory backend",
	Long:    `GrooveWire is the backend for the live-events and artist directory platform: accounts, Pro subscriptions, trials, invites, and the public artist listing.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("GrooveWire %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup; re-initialized once config loads.
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "groovewire",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "groovewire",
	})

	log.Info().Str("version", Version).Msg("Starting GrooveWire server")

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Str("data_dir", cfg.DataDir).Msg("Failed to open database")
	}
	defer db.Close()

	var sender email.Sender
	if cfg.PostmarkServerToken != "" {
		sender = email.NewPostmarkSender(cfg.PostmarkServerToken)
	} else {
		log.Warn().Msg("No email provider configured; emails will be logged only")
		sender = email.NewLogSender(func(to, subject, body string) {
			log.Info().Str("to", to).Str("subject", subject).Msg("Email (not sent)")
		})
	}
	notifier := email.NewNotifier(sender, cfg.EmailFrom, cfg.PublicSiteURL)

	reconciler := billing.NewReconciler(db)
	stripeClient := billing.NewStripeClient(cfg.StripeAPIKey, cfg.ProPriceID, cfg.PublicSiteURL)
	inviteSvc := invites.NewService(db, reconciler, notifier)
	webhook := billing.NewWebhookHandler(cfg.StripeWebhookSecret, db, reconciler, stripeClient, notifier)

	router := api.NewRouter(cfg, db, reconciler, inviteSvc, stripeClient, webhook)
	server := api.NewServer(cfg, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
}
