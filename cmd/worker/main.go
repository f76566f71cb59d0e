package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unibazzar/ai-service/internal/setup"
	"github.com/unibazzar/ai-service/internal/setup/telemetry"
	"github.com/unibazzar/ai-service/internal/worker/core"
	"github.com/unibazzar/ai-service/internal/worker/training"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// WorkerLogDir specifies where worker log files are stored.
	WorkerLogDir = "logs/worker_logs"

	// TrainingWorker runs the scheduled model training pipelines.
	TrainingWorker = "training"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "worker",
		Usage: "Start an aiservice worker",
		Commands: []*cli.Command{
			{
				Name:  TrainingWorker,
				Usage: "Start the scheduled training worker",
				Action: func(ctx context.Context, _ *cli.Command) error {
					runTrainingWorker(ctx)
					return nil
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runTrainingWorker starts the training worker and blocks until shutdown.
func runTrainingWorker(ctx context.Context) {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir, TrainingWorker)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup(ctx)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stagger startup so a fleet of workers does not hit the database at once
	if delay := app.Config.Worker.StartupDelay; delay > 0 {
		app.Logger.Info("Delaying worker startup", zap.Int("delayMs", delay))

		select {
		case <-time.After(time.Duration(delay) * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}

	workerLogger := app.LogManager.GetWorkerLogger("training_worker")
	reporter := core.NewStatusReporter(app.StatusClient, TrainingWorker, workerLogger)
	monitor := core.NewMonitor(app.StatusClient, workerLogger)

	worker := training.New(
		app.Runner, reporter, monitor, app.DB.Model().Moderation(),
		app.Reembedder.Run, app.Retrainer.Run,
		time.Duration(app.Config.Worker.ReembedIntervalMinutes)*time.Minute,
		time.Duration(app.Config.Worker.RetrainIntervalMinutes)*time.Minute,
		workerLogger)

	worker.Start(ctx)
}
