// Command smsgwd is the CLI front-end named in spec.md §6: three verbs,
// "service" (run the dispatcher and listener), "send" (append to the
// queue file) and "status" (report the queue line count). This is
// explicitly out of this system's core scope (spec.md §1); it exists only
// to drive the packages the core defines, in the shape
// original_source/sms_handler_with_file_queue.py's __main__ block uses.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-telegram/bot"

	"github.com/smsgw/gateway/internal/config"
	"github.com/smsgw/gateway/internal/gateway"
	"github.com/smsgw/gateway/internal/queue"
	"github.com/smsgw/gateway/internal/sink"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	config.SetupLogging(cfg.LogLevel)

	var runErr error
	switch os.Args[1] {
	case "service":
		runErr = runService(cfg)
	case "send":
		runErr = runSend(cfg, os.Args[2:])
	case "status":
		runErr = runStatus(cfg)
	default:
		usage()
		os.Exit(1)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "%v\n", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  smsgwd service                  run the dispatcher and listener")
	fmt.Fprintln(os.Stderr, "  smsgwd send <destination> <text...>  append a message to the queue")
	fmt.Fprintln(os.Stderr, "  smsgwd status                   report the queue line count")
}

func runService(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	snk, err := buildSink(cfg)
	if err != nil {
		return fmt.Errorf("build sink: %w", err)
	}

	gwCfg := gateway.DefaultConfig()
	gwCfg.Device = cfg.Device
	gwCfg.NotifyDevice = cfg.NotifyDevice
	gwCfg.Baud = cfg.Baud
	gwCfg.QueueFile = cfg.QueueFile
	gwCfg.Dispatch.CmdSettleDelay = cfg.CmdSettleDelay
	gwCfg.Dispatch.SingleSendSettle = cfg.SingleSendSettle
	gwCfg.Dispatch.ConcatSendSettle = cfg.ConcatSendSettle
	gwCfg.Dispatch.DispatchBackoff = cfg.DispatchBackoff
	gwCfg.Dispatch.QueuePollInterval = cfg.QueuePollInterval
	gwCfg.Dispatch.FsErrorBackoff = cfg.FsErrorBackoff
	gwCfg.Reassemble.MergeWindow = cfg.MergeWindow
	gwCfg.Reassemble.SingletonWait = cfg.SingletonWait
	gwCfg.Reassemble.RetentionWindow = cfg.RetentionWindow
	gwCfg.Reassemble.ConcatGroupTTL = cfg.ConcatGroupTTL

	return gateway.Run(ctx, gwCfg, snk)
}

func buildSink(cfg *config.Config) (sink.Sink, error) {
	sinks := sink.Multi{sink.Stdout{}}
	if cfg.TelegramToken != "" && len(cfg.TelegramChatIDs) > 0 {
		b, err := bot.New(cfg.TelegramToken)
		if err != nil {
			return nil, fmt.Errorf("telegram bot: %w", err)
		}
		sinks = append(sinks, sink.NewTelegram(b, cfg.TelegramChatIDs))
	}
	return sinks, nil
}

// runSend appends one entry to the queue file, joining the remaining
// arguments with spaces, matching original_source's
// `' '.join(sys.argv[3:])`.
func runSend(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: smsgwd send <destination> <text...>")
	}
	destination := args[0]
	text := strings.Join(args[1:], " ")

	q := queue.Open(cfg.QueueFile)
	if err := q.Append(destination, text); err != nil {
		return fmt.Errorf("append to queue: %w", err)
	}
	fmt.Printf("queued message to %s\n", destination)
	return nil
}

func runStatus(cfg *config.Config) error {
	q := queue.Open(cfg.QueueFile)
	count, err := q.Count()
	if err != nil {
		return fmt.Errorf("read queue: %w", err)
	}
	fmt.Printf("%d message(s) queued in %s\n", count, cfg.QueueFile)
	return nil
}
