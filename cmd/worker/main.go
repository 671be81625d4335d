package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/krizar/koboldbot/internal/archive"
	"github.com/krizar/koboldbot/internal/card"
	"github.com/krizar/koboldbot/internal/config"
	"github.com/krizar/koboldbot/internal/engine"
	"github.com/krizar/koboldbot/internal/kobold"
	"github.com/krizar/koboldbot/internal/logging"
	"github.com/krizar/koboldbot/internal/session"
	"github.com/krizar/koboldbot/internal/store/filestore"
	"github.com/krizar/koboldbot/internal/store/rabbitmq"
	"github.com/krizar/koboldbot/internal/store/redisstore"
	"github.com/krizar/koboldbot/internal/telegram"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.RabbitURL == "" {
		log.Fatalf("worker requires RABBIT_URL")
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

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	// queue topology must match the publisher's declarations
	dlqQ := cfg.RabbitQueue + ".dlq"
	if _, err := ch.QueueDeclare(dlqQ, true, false, false, false, nil); err != nil {
		log.Fatalf("dlq declare: %v", err)
	}
	if _, err := ch.QueueDeclare(cfg.RabbitQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqQ,
	}); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg.Info(ctx, "worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var job rabbitmq.UpdateJob
				if err := json.Unmarshal(d.Body, &job); err != nil || job.JobID == "" {
					logg.Warn(ctx, "bad queued update", "worker", workerID, "error", err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				handleUpdate(ctx, eng, tg, logg, job)
				logg.Debug(ctx, "update handled", "worker", workerID, "job", job.JobID, "cost", time.Since(start))

				if err := d.Ack(false); err != nil {
					logg.Error(ctx, "ack failed", "worker", workerID, "job", job.JobID, "error", err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			logg.Info(context.Background(), "worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logg.Warn(ctx, "delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

func handleUpdate(ctx context.Context, eng *engine.Engine, sender *telegram.Client, logg logging.Logger, job rabbitmq.UpdateJob) {
	act := eng.Handle(ctx, job.Update)
	if err := sender.Send(ctx, act); err != nil {
		logg.Error(ctx, "reply send failed", "job", job.JobID, "chat", act.ChatID, "error", err)
	}
}
