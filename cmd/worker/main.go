package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/codemate/internal/app"
	"github.com/suPer8Hu/codemate/internal/chat"
	"github.com/suPer8Hu/codemate/internal/config"
	"github.com/suPer8Hu/codemate/internal/db"
	"github.com/suPer8Hu/codemate/internal/logging"
	"github.com/suPer8Hu/codemate/internal/store/rabbitmq"
	"go.uber.org/zap"
)

// jobTimeout bounds one upstream call plus persistence. In-flight jobs run
// to completion on shutdown.
const jobTimeout = 2 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	provider, err := app.Provider(ctx, cfg)
	if err != nil {
		return err
	}

	repo := chat.NewRepo(gdb)
	// jobs carry their resolved system prompt, so no topic store is needed here
	svc := chat.NewService(repo, provider, nil, log.Named("chat"))
	w := &worker{svc: svc, repo: repo, log: log}

	if cfg.RabbitURL == "" {
		return errors.New("RABBIT_URL is required for the worker")
	}
	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		return fmt.Errorf("rabbit dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbit channel: %w", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	log.Info("worker started",
		zap.String("queue", cfg.RabbitQueue),
		zap.Int("concurrency", concurrency),
		zap.String("ai_provider", cfg.AIProvider),
	)
	return w.consume(ctx, msgs, concurrency)
}

type worker struct {
	svc  *chat.Service
	repo *chat.Repo
	log  *zap.Logger
}

// consume fans deliveries out to a fixed pool until ctx is done or the
// broker closes the channel.
func (w *worker) consume(ctx context.Context, msgs <-chan amqp.Delivery, concurrency int) error {
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				w.deliver(ctx, workerID, d)
			}
		}(i)
	}

	// dispatcher
	defer wg.Wait()
	defer close(jobs)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

// deliver handles one delivery. Failures are dead-lettered, never requeued.
func (w *worker) deliver(ctx context.Context, workerID int, d amqp.Delivery) {
	log := w.log.With(zap.Int("worker", workerID))

	m, err := rabbitmq.DecodeJobMessage(d.Body)
	if err != nil || m.JobID == "" {
		log.Warn("bad message", zap.ByteString("body", d.Body), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
	defer cancel()

	start := time.Now()
	if err := w.handleJob(jobCtx, m.JobID); err != nil {
		log.Error("job failed", zap.String("job_id", m.JobID), zap.Duration("cost", time.Since(start)), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	if err := d.Ack(false); err != nil {
		log.Warn("ack failed", zap.String("job_id", m.JobID), zap.Error(err))
	}
	log.Info("job done", zap.String("job_id", m.JobID), zap.Duration("cost", time.Since(start)))
}

// handleJob moves a job queued -> running -> succeeded|failed. A job that
// is already terminal (redelivered, or failed at enqueue) is acknowledged
// without another upstream call.
func (w *worker) handleJob(ctx context.Context, jobID string) error {
	if err := w.repo.UpdateJobStatusRunning(ctx, jobID); err != nil {
		return err
	}
	j, err := w.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status == chat.JobSucceeded || j.Status == chat.JobFailed {
		return nil
	}

	msgID, err := w.svc.GenerateJobReply(ctx, j)
	if err != nil {
		if markErr := w.repo.MarkJobFailed(ctx, jobID, err.Error()); markErr != nil {
			w.log.Error("mark job failed", zap.String("job_id", jobID), zap.Error(markErr))
		}
		return err
	}
	return w.repo.MarkJobSucceeded(ctx, jobID, msgID)
}
