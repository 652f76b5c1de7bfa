package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TickerTask is a named task triggered at a fixed interval. Tasks sharing a
// loop run one at a time; a tick that fires while another task is running is
// dropped, not queued.
type TickerTask struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Run        func(ctx context.Context)
}

// TickerConfig configures a ticker-based worker loop.
type TickerConfig struct {
	Name   string
	Tasks  []TickerTask
	Logger *zerolog.Logger
}

// TickerLoop runs the configured tasks on their own tickers until the context
// is canceled. Returns a wrapped context error on cancellation.
func TickerLoop(ctx context.Context, cfg TickerConfig) error {
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	logger.Info().Str("worker", cfg.Name).Msg("starting ticker loop")
	defer logger.Info().Str("worker", cfg.Name).Msg("ticker loop stopped")

	if len(cfg.Tasks) == 0 {
		<-ctx.Done()

		return fmt.Errorf("ticker loop %s: %w", cfg.Name, ctx.Err())
	}

	for _, task := range cfg.Tasks {
		if task.RunOnStart && task.Run != nil {
			runTask(ctx, task, logger)
		}
	}

	tickers := make([]*time.Ticker, len(cfg.Tasks))

	for i, task := range cfg.Tasks {
		if task.Interval > 0 {
			tickers[i] = time.NewTicker(task.Interval)
			defer tickers[i].Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("ticker loop %s: %w", cfg.Name, ctx.Err())
		default:
		}

		for i, task := range cfg.Tasks {
			if tickers[i] == nil || task.Run == nil {
				continue
			}

			select {
			case <-tickers[i].C:
				runTask(ctx, task, logger)
			default:
			}
		}

		if err := Wait(ctx, tickerPollInterval); err != nil {
			return err
		}
	}
}

// tickerPollInterval is the sleep between ticker checks to avoid busy-waiting.
const tickerPollInterval = 100 * time.Millisecond

func runTask(ctx context.Context, task TickerTask, logger *zerolog.Logger) {
	defer RecoverPanic(logger, task.Name)

	logger.Debug().Str(logFieldTask, task.Name).Msg("running task")
	task.Run(ctx)
}
