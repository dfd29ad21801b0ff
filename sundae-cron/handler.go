// Package sundaecron provides utilities for building scheduled Lambda functions.
package sundaecron

import (
	"context"
	"encoding/json"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-slides/sundae-cli"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var CronOpts struct {
	Every time.Duration
}

var EveryFlag = sundaecli.DurationFlag("every", "In console mode, repeat the task at this interval instead of running once", &CronOpts.Every, 0)

var CronFlags = []cli.Flag{
	EveryFlag,
}

type RunCallback func(ctx context.Context) error

type Handler struct {
	service sundaecli.Service
	logger  zerolog.Logger

	runOnce RunCallback
}

func NewHandler(
	service sundaecli.Service,
	runOnce RunCallback,
) *Handler {
	return &Handler{
		service: service,
		logger:  sundaecli.Logger(service),
		runOnce: runOnce,
	}
}

func (h *Handler) RunOnce(ctx context.Context, _ json.RawMessage) error {
	h.logger.Info().Msg("running scheduled task")
	return h.runOnce(ctx)
}

// RunEvery runs the task immediately and then every interval until ctx is
// done. A failed run is logged and does not stop the loop.
func (h *Handler) RunEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := h.RunOnce(ctx, nil); err != nil {
			h.logger.Error().Err(err).Msg("scheduled task failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (h *Handler) Start(ctx context.Context) error {
	switch {
	case sundaecli.CommonOpts.Console && CronOpts.Every > 0:
		return h.RunEvery(ctx, CronOpts.Every)

	case sundaecli.CommonOpts.Console:
		return h.runOnce(ctx)

	default:
		lambda.Start(h.RunOnce)
	}
	return nil
}
