// Command roar runs one mesh chat node: it discovers peers, dials them,
// and exchanges voice and text over the connections it establishes.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teenxsky/roar/internal/config"
	"github.com/teenxsky/roar/internal/session"
)

func main() {
	configFilePath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configFilePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "roar: loading config:", err)
		os.Exit(1)
	}

	logFile, err := cfg.ConfigureLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "roar: configuring logger:", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	logger := slog.Default()

	s, err := session.New(cfg, logger, "")
	if err != nil {
		logger.Error("failed to construct session", "err", err)
		os.Exit(1)
	}

	sink := &stdoutTextSink{logger: logger}
	s.SetTextSink(sink)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Start(ctx); err != nil {
		logger.Error("failed to start session", "err", err)
		os.Exit(1)
	}
	defer s.Stop()

	logger.Info("node is running", "address", s.Addr(), "username", cfg.Username)
	go readStdinMessages(ctx, s)

	<-ctx.Done()
	logger.Info("shutting down")
}

// stdoutTextSink prints incoming chat messages to stdout, the minimal UI
// boundary consumer for this entrypoint.
type stdoutTextSink struct {
	logger *slog.Logger
}

func (s *stdoutTextSink) DeliverText(msg session.TextMessage) {
	fmt.Printf("[%s] %s\n", msg.SenderName, msg.Body)
}

// readStdinMessages forwards each line typed on stdin as an outgoing text
// message, until ctx is done or stdin closes.
func readStdinMessages(ctx context.Context, s *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		s.SendMessage(line)
	}
}
