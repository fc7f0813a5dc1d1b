// deepvcode-bridge runs the assistant client core over an NDJSON stdio
// transport: the host writes one envelope per line on stdin and receives
// the core's outbound envelopes on stdout. This is how the presentation
// surface embeds the core when it runs out of process.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OrionStarAI/DeepVCode-sub000/internal/client"
	"github.com/OrionStarAI/DeepVCode-sub000/internal/config"
	"github.com/OrionStarAI/DeepVCode-sub000/internal/protocol"
)

const version = "1.0.0"

func main() {
	var configPath string
	var debug bool

	root := &cobra.Command{
		Use:     "deepvcode-bridge",
		Short:   "Session and transport core for the DeepVCode assistant client",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, debug)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to YAML config")
	root.Flags().BoolVar(&debug, "debug", false, "enable debug logging on stderr")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stderr"}
	if debug {
		logCfg.Level = zap.NewAtomicLevel()
		logCfg.Level.SetLevel(zap.DebugLevel)
	}
	logger, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	var outMu sync.Mutex
	out := bufio.NewWriter(os.Stdout)
	deliver := func(env protocol.Envelope) error {
		outMu.Lock()
		defer outMu.Unlock()
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if _, err := out.Write(append(data, '\n')); err != nil {
			return err
		}
		return out.Flush()
	}

	c := client.New(deliver, cfg, logger, client.WithNoticeHandler(func(n client.Notice) {
		logger.Info("notice",
			zap.String("kind", n.Kind),
			zap.String("session_id", n.SessionID),
			zap.String("text", n.Text))
	}))
	defer c.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan []byte)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			lines <- line
		}
	}()

	for {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", zap.String("signal", sig.String()))
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if len(line) == 0 {
				continue
			}
			c.HandleRaw(line)
		}
	}
}
