// Package config loads the gateway's environment-variable driven
// configuration, following the shape of
// kogeler-tooling/sms-to-telegram's loadConfig(): defaults for everything,
// time.ParseDuration for tunables, and descriptive fmt.Errorf validation
// failures rather than panics.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable named in spec.md §6 and §9.
type Config struct {
	// Device is the serial device the modem is attached to.
	Device string
	// NotifyDevice is the device URCs are read from. Defaults to Device;
	// set separately only for modems that expose distinct command and
	// notification ports (e.g. the teacher's Huawei dual-port setup).
	NotifyDevice string
	// Baud is the serial baud rate.
	Baud int
	// QueueFile is the path to the file-backed outbound queue.
	QueueFile string
	// LogLevel controls slog's minimum emitted level.
	LogLevel slog.Level

	// CmdSettleDelay is the wait after AT+CMGF=0, before AT+CMGS is
	// issued. The PDU is written as soon as the AT+CMGS prompt arrives,
	// with no wait.
	CmdSettleDelay time.Duration
	// SingleSendSettle is the wait after writing a single-segment PDU's
	// Ctrl-Z terminator (spec.md §4.3: "2 s").
	SingleSendSettle time.Duration
	// ConcatSendSettle is the wait after writing a concat segment's
	// Ctrl-Z terminator (spec.md §4.3: "3 s").
	ConcatSendSettle time.Duration
	// DispatchBackoff is the sleep after a failed send before retrying
	// the same head entry (spec.md §4.3/§7: "10 s").
	DispatchBackoff time.Duration
	// QueuePollInterval is the sleep when the queue file is empty or
	// missing (spec.md §4.3: "1 s").
	QueuePollInterval time.Duration
	// FsErrorBackoff is the sleep after a queue file read/write failure
	// (spec.md §7: FsError, "sleeps 5 s and retries").
	FsErrorBackoff time.Duration

	// MergeWindow is the time-window heuristic's lookback for candidate
	// fragments (spec.md §4.4: "3 s").
	MergeWindow time.Duration
	// SingletonWait is how long a lone time-window fragment waits before
	// being emitted on its own (spec.md §4.4: "2 s").
	SingletonWait time.Duration
	// RetentionWindow is how long an un-merged time-window fragment is
	// kept before being purged outright (spec.md §3: "10 s").
	RetentionWindow time.Duration
	// ConcatGroupTTL bounds how long an incomplete ConcatGroup is kept
	// before being garbage collected (spec.md §9 open question, resolved
	// in SPEC_FULL.md: 24h default).
	ConcatGroupTTL time.Duration

	// TelegramToken and TelegramChatIDs configure the optional Telegram
	// sink (SPEC_FULL.md DOMAIN STACK). Both empty disables it.
	TelegramToken   string
	TelegramChatIDs []int64
}

// Load reads configuration from the environment, applying the defaults
// named in spec.md §6 and §9.
func Load() (*Config, error) {
	cfg := &Config{
		Device:            getenv("SMSGW_DEVICE", "/dev/ttyUSB2"),
		Baud:              115200,
		QueueFile:         getenv("SMSGW_QUEUE_FILE", "/tmp/sms_queue.txt"),
		LogLevel:          slog.LevelInfo,
		CmdSettleDelay:    500 * time.Millisecond,
		SingleSendSettle:  2 * time.Second,
		ConcatSendSettle:  3 * time.Second,
		DispatchBackoff:   10 * time.Second,
		QueuePollInterval: 1 * time.Second,
		FsErrorBackoff:    5 * time.Second,
		MergeWindow:       3 * time.Second,
		SingletonWait:     2 * time.Second,
		RetentionWindow:   10 * time.Second,
		ConcatGroupTTL:    24 * time.Hour,
	}
	cfg.NotifyDevice = cfg.Device

	if v := os.Getenv("SMSGW_NOTIFY_DEVICE"); v != "" {
		cfg.NotifyDevice = v
	}

	if v := os.Getenv("SMSGW_BAUD"); v != "" {
		baud, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SMSGW_BAUD %q: %w", v, err)
		}
		cfg.Baud = baud
	}

	if v := os.Getenv("SMSGW_LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}

	for _, d := range []struct {
		env string
		dst *time.Duration
	}{
		{"SMSGW_CMD_SETTLE_DELAY", &cfg.CmdSettleDelay},
		{"SMSGW_SINGLE_SEND_SETTLE", &cfg.SingleSendSettle},
		{"SMSGW_CONCAT_SEND_SETTLE", &cfg.ConcatSendSettle},
		{"SMSGW_DISPATCH_BACKOFF", &cfg.DispatchBackoff},
		{"SMSGW_QUEUE_POLL_INTERVAL", &cfg.QueuePollInterval},
		{"SMSGW_FS_ERROR_BACKOFF", &cfg.FsErrorBackoff},
		{"SMSGW_MERGE_WINDOW", &cfg.MergeWindow},
		{"SMSGW_SINGLETON_WAIT", &cfg.SingletonWait},
		{"SMSGW_RETENTION_WINDOW", &cfg.RetentionWindow},
		{"SMSGW_CONCAT_GROUP_TTL", &cfg.ConcatGroupTTL},
	} {
		if v := os.Getenv(d.env); v != "" {
			dur, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q: %w", d.env, v, err)
			}
			if dur <= 0 {
				return nil, fmt.Errorf("invalid %s %q: must be > 0", d.env, v)
			}
			*d.dst = dur
		}
	}

	cfg.TelegramToken = os.Getenv("SMSGW_TELEGRAM_TOKEN")
	if idsStr := os.Getenv("SMSGW_TELEGRAM_CHAT_IDS"); idsStr != "" {
		for _, idStr := range strings.Split(idsStr, ",") {
			idStr = strings.TrimSpace(idStr)
			if idStr == "" {
				continue
			}
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid SMSGW_TELEGRAM_CHAT_IDS entry %q: %w", idStr, err)
			}
			cfg.TelegramChatIDs = append(cfg.TelegramChatIDs, id)
		}
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid SMSGW_LOG_LEVEL %q (use DEBUG, INFO, WARN, ERROR)", s)
	}
}

// SetupLogging installs a slog text handler writing to stderr at the
// configured level, following kogeler-tooling/sms-to-telegram's
// setupLogging.
func SetupLogging(level slog.Level) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
