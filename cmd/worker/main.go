package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/canvas-platform/internal/app"
	"github.com/suPer8Hu/canvas-platform/internal/canvas"
	"github.com/suPer8Hu/canvas-platform/internal/config"
	"github.com/suPer8Hu/canvas-platform/internal/logger"
	"github.com/suPer8Hu/canvas-platform/internal/metrics"
	"github.com/suPer8Hu/canvas-platform/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.RabbitURL == "" {
		log.Fatal("RABBIT_URL is required for the worker")
	}

	gdb, err := app.Database(cfg)
	if err != nil {
		log.Fatal("database init failed", "error", err)
	}
	m := metrics.New()
	gw, err := app.Gateway(context.Background(), cfg, m)
	if err != nil {
		log.Fatal("ai provider init failed", "provider", cfg.AIProvider, "error", err)
	}
	svc := canvas.NewService(canvas.NewRepo(gdb), gw,
		canvas.WithLogger(log.With("component", "canvas")),
		canvas.WithMetrics(m),
		canvas.WithHistorySize(cfg.ChatContextWindowSize),
	)

	// strict concurrency control: prefetch = pool size
	concurrency := cfg.WorkerConcurrency

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, concurrency)
	if err != nil {
		log.Fatal("rabbitmq consumer init failed", "error", err)
	}
	defer consumer.Close()

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal("rabbitmq publisher init failed", "error", err)
	}
	defer pub.Close()

	msgs, err := consumer.Deliveries("")
	if err != nil {
		log.Fatal("consume failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	p := &processor{runner: svc, retrier: pub, log: log}

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := p.log.With("worker", workerID)
			for d := range jobs {
				p.handle(ctx, wlog, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				// broker connection lost; drain and exit so the supervisor restarts us
				log.Error("delivery channel closed")
				stop()
				msgs = nil
				continue
			}
			jobs <- d
		}
	}
}
