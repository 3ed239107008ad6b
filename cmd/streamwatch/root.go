package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragmetrics/logging"
	"ragmetrics/stream"
	"ragmetrics/webui/auth"
)

type watchOptions struct {
	url      string
	identity string
	token    string
	once     bool
	history  int
	width    int
	verbose  bool
}

func newRootCommand() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "streamwatch",
		Short: "Watch a metrics relay stream from the terminal",
		Long: `streamwatch connects to a metrics relay's /metrics/stream endpoint and
renders the live snapshots: connection state changes, the latest values and
sparklines of CPU usage and RAG p95 latency.

Examples:
  # Follow the stream
  streamwatch --url http://localhost:8090 --identity ops@example.com

  # Fetch one snapshot over HTTP and exit
  streamwatch --url http://localhost:8090 --identity ops@example.com --once`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.url, "url", envOr("STREAMWATCH_URL", "http://localhost:8090"), "Base URL of the metrics relay")
	flags.StringVar(&opts.identity, "identity", os.Getenv("STREAMWATCH_IDENTITY"), "Identity sent in the X-User-Email header")
	flags.StringVar(&opts.token, "token", os.Getenv("STREAMWATCH_TOKEN"), "Shared access token, if the relay requires one")
	flags.BoolVar(&opts.once, "once", false, "Fetch a single snapshot over HTTP and exit")
	flags.IntVar(&opts.history, "history", stream.DefaultHistorySize, "Samples kept per series")
	flags.IntVar(&opts.width, "width", 72, "Chart width in columns")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log reconnects and dropped messages")

	cmd.AddCommand(newHashTokenCommand())
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (o *watchOptions) streamConfig() (stream.Config, error) {
	if strings.TrimSpace(o.identity) == "" {
		return stream.Config{}, errors.New("--identity is required")
	}
	return stream.Config{
		BaseURL:     o.url,
		Identity:    o.identity,
		Token:       o.token,
		HistorySize: o.history,
	}, nil
}

func (o *watchOptions) logger() (*zap.Logger, error) {
	if !o.verbose {
		return zap.NewNop(), nil
	}
	l, err := logging.NewLogger(logging.Config{Development: true, Level: "debug"})
	if err != nil {
		return nil, err
	}
	return l.Zap(), nil
}

// runWatch follows the stream until ctx ends or the manager gives up.
func runWatch(ctx context.Context, out io.Writer, opts *watchOptions) error {
	config, err := opts.streamConfig()
	if err != nil {
		return err
	}
	logger, err := opts.logger()
	if err != nil {
		return err
	}

	manager, err := stream.New(config, stream.WithLogger(logger))
	if err != nil {
		return err
	}
	defer manager.Dispose()

	if opts.once {
		fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		snapshot, err := manager.FetchSnapshot(fetchCtx)
		if err != nil {
			return fmt.Errorf("fetch snapshot: %w", err)
		}
		printSummary(out, snapshot)
		return nil
	}

	w := newWatcher(out, manager.History(), opts.width)
	terminal := make(chan stream.ConnectionState, 1)

	unsubscribeState := manager.State().Subscribe(func(s stream.ConnectionState) {
		w.stateChanged(s)
		if s.Terminal {
			select {
			case terminal <- s:
			default:
			}
		}
	})
	defer unsubscribeState()
	unsubscribeRows := manager.History().Subscribe(w.rowAppended)
	defer unsubscribeRows()

	fmt.Fprintf(out, "streamwatch %s\n", manager.StreamURL())
	if err := manager.Connect(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		manager.Disconnect()
		return nil
	case s := <-terminal:
		if s.LastError != "" {
			return fmt.Errorf("stream stopped: %s", s.LastError)
		}
		return nil
	}
}

func newHashTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Print the bcrypt hash of an access token for METRICS_TOKEN_HASH",
		Long: `Hash a shared access token for the relay's METRICS_TOKEN_HASH setting.
The token is read from the argument or, when omitted, from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read token: %w", err)
				}
				token = strings.TrimSpace(string(data))
			}
			if token == "" {
				return errors.New("token must not be empty")
			}

			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
