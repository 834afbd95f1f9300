package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/pflag"

	"iot-tier-pipeline/src/config"
	"iot-tier-pipeline/src/listeners"
	"iot-tier-pipeline/src/pipeline"
)

const usage = `usage: pipeline-local <command> [flags]

commands:
  serve       run the configured notification listeners (webhook, AMQP, MQTT)
  reprocess   run a stage over every object already in a tier
  status      print file counts and the latest object of each tier
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("missing command")
	}

	command := args[0]
	flags := pflag.NewFlagSet(command, pflag.ContinueOnError)
	configDir := flags.String("config", ".", "directory holding config.yaml")
	envFile := flags.String("env-file", "./.env.local", "dotenv file loaded before the environment is read")
	tier := flags.String("tier", "bronze", "tier to reprocess (bronze or silver)")
	prefix := flags.String("prefix", "", "only reprocess keys under <tier>/<prefix>")

	if err := flags.Parse(args[1:]); err != nil {
		return err
	}

	if err := godotenv.Load(*envFile); err != nil {
		log.Println("No .env file found. Falling back to OS environment variables.")
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		return err
	}

	switch command {
	case "serve":
		return serve(ctx, p)

	case "reprocess":
		batch, err := p.Reprocess(ctx, strings.TrimSuffix(*tier, "/")+"/", *prefix)
		if err != nil {
			return err
		}
		return printJSON(stdout, batch)

	case "status":
		report, err := p.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, report)

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func serve(ctx context.Context, p *pipeline.Pipeline) error {
	l := p.Config.Listeners

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	start := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancel()
			}
		}()
	}

	if l.Webhook.Addr != "" {
		start("webhook", func() error {
			return listeners.ServeWebhook(ctx, l.Webhook.Addr, p.Trigger)
		})
	}

	if l.AMQP.URL != "" {
		conn, err := amqp.Dial(l.AMQP.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer conn.Close()

		consumer, err := listeners.NewAMQPConsumer(conn, l.AMQP, p.Trigger)
		if err != nil {
			return err
		}
		start("amqp", func() error { return consumer.Start(ctx) })
	}

	if l.MQTT.Broker != "" {
		subscriber := listeners.NewMQTTSubscriber(l.MQTT, p.Trigger)
		start("mqtt", func() error { return subscriber.Start(ctx) })
	}

	if l.Webhook.Addr == "" && l.AMQP.URL == "" && l.MQTT.Broker == "" {
		return errors.New("no listener configured: set WEBHOOK_ADDR, AMQP_URL or MQTT_BROKER")
	}

	log.Printf("Pipeline serving: stage=%s storage=%s", p.Config.Pipeline.Stage, p.Config.Storage.Backend)

	wg.Wait()
	return errors.Join(errs...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
