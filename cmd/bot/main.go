package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/krizar/koboldbot/internal/archive"
	"github.com/krizar/koboldbot/internal/card"
	"github.com/krizar/koboldbot/internal/config"
	"github.com/krizar/koboldbot/internal/engine"
	"github.com/krizar/koboldbot/internal/httpapi"
	"github.com/krizar/koboldbot/internal/httpapi/handlers"
	"github.com/krizar/koboldbot/internal/kobold"
	"github.com/krizar/koboldbot/internal/logging"
	"github.com/krizar/koboldbot/internal/session"
	"github.com/krizar/koboldbot/internal/store/filestore"
	"github.com/krizar/koboldbot/internal/store/rabbitmq"
	"github.com/krizar/koboldbot/internal/store/redisstore"
	"github.com/krizar/koboldbot/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg, zl, err := logging.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	cardFiles, err := filestore.NewDirStore(cfg.CardsDir)
	if err != nil {
		log.Fatalf("card storage: %v", err)
	}
	sessFiles, err := filestore.NewDirStore(cfg.SessionsDir)
	if err != nil {
		log.Fatalf("session storage: %v", err)
	}

	var cache card.Cache
	if cfg.RedisAddr != "" {
		rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logg)
		defer rs.Close()
		cache = rs
	}

	cards := card.NewStore(cardFiles, cache, logg)
	sessions := session.NewStore(sessFiles, logg)
	gen := kobold.NewClient(cfg.KoboldEndpoint, cfg.GenTimeout, cfg.GenMaxAttempts, logg)
	tg := telegram.NewClient(cfg.BotToken, logg)

	var arch engine.Archiver
	if cfg.ArchiveDSN != "" {
		db, err := archive.Connect(cfg.ArchiveDSN)
		if err != nil {
			log.Fatalf("archive: %v", err)
		}
		arch = archive.NewRepo(db)
	}

	eng := engine.New(cards, sessions, gen, tg, arch, logg)

	var pub handlers.Publisher
	if cfg.RabbitURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatalf("rabbit: %v", err)
		}
		defer p.Close()
		pub = p
	}

	h := handlers.NewHandler(eng, tg, pub, cfg.WebhookSecret, logg)
	router := httpapi.NewRouter(h, logg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: cfg.WebhookAddr, Handler: router}

	go func() {
		logg.Info(ctx, "webhook server started", "addr", cfg.WebhookAddr, "bot", cfg.BotUsername)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logg.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "shutdown failed", "error", err)
	}
}
