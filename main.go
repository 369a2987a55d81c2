package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"log"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devcollab/internal/api"
	"devcollab/internal/auth"
	"devcollab/internal/chat"
	"devcollab/internal/commands"
	"devcollab/internal/config"
	"devcollab/internal/events"
	"devcollab/internal/filestore"
	"devcollab/internal/http"
	"devcollab/internal/notify"
	"devcollab/internal/storage"
	"devcollab/internal/ws"

	"golang.org/x/sync/errgroup"
)

func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("devcollab", flag.ContinueOnError)
	addUser := flags.String("add-user", "", "Email of the user to create (prints a generated password)")
	genVAPID := flags.Bool("gen-vapid", false, "Print a new web push VAPID key pair and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *genVAPID {
		return commands.GenerateVAPIDKeys()
	}

	cfg, err := config.Load(*addUser != "")
	if err != nil {
		return err
	}
	setupLogging(cfg)

	if *addUser != "" {
		return commands.AddUser(*addUser, cfg)
	}

	authConfig := auth.Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte(cfg.AuthSecret)),
		TokenExpiry: cfg.TokenExpiry,
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	files, err := filestore.NewLocalFileStore(cfg.UploadsPath)
	if err != nil {
		return err
	}

	gate, err := auth.NewGate(ctx, authConfig, bbStorage)
	if err != nil {
		return err
	}

	var push notify.PushSender
	if cfg.PushEnabled() {
		wp, err := notify.NewWebPush(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
		if err != nil {
			return err
		}
		push = wp
	}

	hub := ws.NewHub()
	emitter := events.NewEmitter(hub)
	notifier := notify.NewService(bbStorage, emitter, push)
	defer notifier.Wait()
	pipeline := chat.New(bbStorage, bbStorage, hub, notifier, chat.Config{EditWindow: cfg.EditWindow})

	adminServer := http.NewAdminServer(
		api.NewAdminHandler(bbStorage, notifier, emitter, cfg.BaseURL),
		cfg.AdminAddr,
	)
	apiServer := http.NewAPIServer(
		api.New(gate, pipeline, notifier, bbStorage, files, cfg.VAPIDPublicKey),
		ws.NewServer(gate, hub, pipeline),
		cfg.APIAddr,
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gCtx)
	})

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
