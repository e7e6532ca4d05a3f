// Command boww-server runs the wake-word arbitration server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/boww-net/boww-server/internal/logging"
	"github.com/boww-net/boww-server/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := flag.String("config", "clients.yaml", "path to the group/client config file")
	port := flag.Int("port", 9002, "port to listen on")
	modelPath := flag.String("model", "models/silero_vad.onnx", "path to the Silero VAD ONNX model")
	instanceName := flag.String("instance-name", "", "LAN discovery instance name (defaults to a generated one)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := logging.NewSlog(*debug)

	name := *instanceName
	if name == "" {
		name = "boww-" + uuid.NewString()[:8]
	}

	srv, err := server.New(server.Config{
		Port:         *port,
		ConfigPath:   *configPath,
		InstanceName: name,
		ModelPath:    *modelPath,
		Debug:        *debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("boww-server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("boww-server: starting", "port", *port, "instance_name", name)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("boww-server: %w", err)
	}
	return nil
}
