package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sundaeapi "github.com/SundaeSwap-finance/sundae-slides/sundae-api"
	sundaecli "github.com/SundaeSwap-finance/sundae-slides/sundae-cli"
	sundaecron "github.com/SundaeSwap-finance/sundae-slides/sundae-cron"
	sundaeddb "github.com/SundaeSwap-finance/sundae-slides/sundae-ddb"
	sundaegql "github.com/SundaeSwap-finance/sundae-slides/sundae-gql"
	sundaeregistry "github.com/SundaeSwap-finance/sundae-slides/sundae-registry"
	sundaereport "github.com/SundaeSwap-finance/sundae-slides/sundae-report"
	sundaerest "github.com/SundaeSwap-finance/sundae-slides/sundae-rest"
	sundaeslide "github.com/SundaeSwap-finance/sundae-slides/sundae-slide"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/publish"
	sundaesqlite "github.com/SundaeSwap-finance/sundae-slides/sundae-sqlite"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"
)

const hubCloseTimeout = 10 * time.Second

var service = sundaecli.NewService("sundae-slides")

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger := sundaecli.Logger(service)
		logger.Fatal().Err(err).Msg("sundae-slides failed")
	}
}

func newApp() *cli.App {
	var flags []cli.Flag
	flags = append(flags, sundaecli.CommonFlags...)
	flags = append(flags, sundaecli.PortFlag(8080))
	flags = append(flags, sundaeslide.SlideFlags...)
	flags = append(flags, sundaesqlite.SQLiteFlags...)
	flags = append(flags, sundaeddb.DDBFlags...)

	app := sundaecli.App(service, serve, flags...)
	app.Commands = []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Serve the websocket, REST and graphql endpoints",
			Action: serve,
		},
		{
			Name:   "report",
			Usage:  "Write a snapshot of every presentation's feedback to S3",
			Flags:  sundaereport.ReportFlags,
			Action: report,
		},
		{
			Name:   "sweep",
			Usage:  "Delete connection records whose TTL has passed",
			Flags:  sundaecron.CronFlags,
			Action: sweep,
		},
	}
	return app
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := sundaecli.Logger(service)

	s, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	registry := sundaeregistry.New(s.presentations, logger)
	api := &sundaeapi.API{
		Feedback:      s.feedback,
		Presentations: registry,
	}

	// API Gateway's HTTP integration cannot upgrade sockets, so lambda mode
	// only serves the reporting endpoints.
	var hub *sundaeslide.Hub
	if sundaecli.CommonOpts.Console {
		hub, err = newHub(s, registry)
		if err != nil {
			return err
		}
		api.Hub = hub
	}

	router := sundaerest.Middlewares(service, chi.NewRouter())
	api.Routes(router)
	if err := sundaegql.Mount(router, sundaeapi.NewResolver(api, sundaegql.NewConfig(service))); err != nil {
		return err
	}

	serveErr := sundaerest.WebserverContext(ctx, service, router)

	if hub != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), hubCloseTimeout)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to close slide hub")
		}
	}
	return serveErr
}

func newHub(s *stores, registry *sundaeregistry.Registry) (*sundaeslide.Hub, error) {
	opts := sundaeslide.SlideOpts
	hub := &sundaeslide.Hub{
		Feedback:    s.feedback,
		Connections: s.connections,
		Registry:    registry,
		Logger:      sundaecli.Logger(service).With().Str("component", "hub").Logger(),
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		IdleTimeout: opts.IdleTimeout,
		SendBuffer:  opts.SendBuffer,
		ConnTTL:     opts.ConnTTL,
	}

	if !opts.Publish && !opts.Metrics {
		return hub, nil
	}

	sess, err := sundaeddb.Session()
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	if opts.Publish {
		hub.Events = publish.Build(sess, sundaecli.CommonOpts.Env, opts.StreamName)
	}
	if opts.Metrics {
		hub.Metrics = sundaecli.NewMetrics(service, cloudwatch.New(sess))
	}
	return hub, nil
}

func report(c *cli.Context) error {
	s, err := openStores(c.Context)
	if err != nil {
		return err
	}
	defer s.Close()

	sess, err := sundaeddb.Session()
	if err != nil {
		return fmt.Errorf("failed to create aws session: %w", err)
	}

	registry := sundaeregistry.New(s.presentations, sundaecli.Logger(service))
	generate := sundaereport.FeedbackSnapshot(registry, s.feedback, sundaereport.ReportOpts.Concurrency)
	return sundaereport.NewHandler(service, s3.New(sess), sundaereport.FeedbackReportName, generate).Start(c.Context)
}

func sweep(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	task := sundaecron.ConnectionSweep(s.connections, sundaecli.Logger(service).With().Str("component", "sweep").Logger())
	return sundaecron.NewHandler(service, task).Start(ctx)
}
