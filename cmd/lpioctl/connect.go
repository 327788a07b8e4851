package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/lpio/internal/client"
	"github.com/danmuck/lpio/internal/logging"
	"github.com/danmuck/lpio/internal/observability"
	"github.com/danmuck/lpio/internal/protocol/message"
	"github.com/danmuck/lpio/internal/protocol/session"
	"github.com/danmuck/lpio/internal/transport"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var errChannelClosed = errors.New("lpioctl: channel closed")

type connectOptions struct {
	configPath  string
	url         string
	to          string
	clientID    string
	user        string
	token       string
	metricsAddr string
}

func newConnectCmd() *cobra.Command {
	opts := connectOptions{}
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Open a channel and send stdin lines as data messages",
		Example: `# relay stdin to user bob through a local endpoint
lpioctl connect --url http://127.0.0.1:3000/lpio --user alice --to bob`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "channel config file (toml)")
	cmd.Flags().StringVar(&opts.url, "url", "", "endpoint url (overrides config)")
	cmd.Flags().StringVar(&opts.to, "to", "", "recipient for stdin lines")
	cmd.Flags().StringVar(&opts.clientID, "client-id", "", "client id to resume")
	cmd.Flags().StringVar(&opts.user, "user", "", "user id")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token for the endpoint")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

func (o connectOptions) channelConfig() (session.Config, error) {
	cfg := session.DefaultConfig()
	if o.configPath != "" {
		loaded, err := loadChannelConfig(o.configPath)
		if err != nil {
			return session.Config{}, err
		}
		cfg = loaded
	}
	if v := strings.TrimSpace(o.url); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(o.clientID); v != "" {
		cfg.ClientID = v
	}
	if v := strings.TrimSpace(o.user); v != "" {
		cfg.UserID = v
	}
	if v := strings.TrimSpace(o.token); v != "" {
		cfg.AuthToken = v
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

func runConnect(ctx context.Context, opts connectOptions, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.channelConfig()
	if err != nil {
		return err
	}
	if opts.metricsAddr != "" {
		stop := serveMetrics(opts.metricsAddr)
		defer stop()
	}

	tr, err := transport.NewHTTPTransport(cfg)
	if err != nil {
		return err
	}
	c, err := client.New(cfg, tr)
	if err != nil {
		return err
	}
	printEvents(c, out)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	c.On(client.EventUnauthorized, func(ev client.Event) {
		cancel(fmt.Errorf("connect: %w", ev.Err))
	})
	if err := c.Connect(); err != nil {
		return err
	}
	defer c.Disconnect()
	logging.Infof("lpioctl.connect channel=%s url=%s", cfg.Name, tr.URL())

	lines := make(chan string)
	go readLines(ctx, in, lines)
	for {
		select {
		case <-ctx.Done():
			return exitCause(ctx)
		case line, ok := <-lines:
			if !ok {
				return waitPending(ctx, c)
			}
			sendLine(c, opts.to, line, out)
		}
	}
}

func readLines(ctx context.Context, in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case lines <- line:
		case <-ctx.Done():
			return
		}
	}
}

// exitCause maps the connect context's end to the command result. A signal is
// a clean exit; anything else cancelled it with a reason.
func exitCause(ctx context.Context) error {
	err := context.Cause(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func sendLine(c *client.Client, to, line string, out io.Writer) {
	if strings.TrimSpace(to) == "" {
		fmt.Fprintln(out, "! no recipient, set --to")
		return
	}
	id := c.Send(message.Options{Recipient: to, Data: message.Text(line)}, func(err error) {
		if err != nil {
			fmt.Fprintf(out, "! %s: %v\n", line, err)
			return
		}
		fmt.Fprintf(out, "> delivered %q\n", line)
	})
	logging.Debugf("lpioctl.send id=%s to=%s", id, to)
}

// waitPending keeps the channel open after stdin closes until queued sends
// settle. A disabled client never drains its buffer, so that ends the wait too.
func waitPending(ctx context.Context, c *client.Client) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if len(c.PendingAcks()) == 0 && len(c.Buffered()) == 0 {
			return nil
		}
		if c.State() == client.StateDisabled {
			// the unauthorized handler runs just after the state flips.
			select {
			case <-ctx.Done():
				return exitCause(ctx)
			case <-time.After(100 * time.Millisecond):
			}
			if err := exitCause(ctx); err != nil {
				return err
			}
			return fmt.Errorf("%w: %d message(s) undelivered", errChannelClosed, len(c.Buffered()))
		}
		select {
		case <-ctx.Done():
			return exitCause(ctx)
		case <-ticker.C:
		}
	}
}
func printEvents(c *client.Client, out io.Writer) {
	c.On(client.EventConnected, func(client.Event) {
		fmt.Fprintln(out, "* connected")
	})
	c.On(client.EventDisconnected, func(client.Event) {
		fmt.Fprintln(out, "* disconnected")
	})
	c.On(client.EventOption, func(ev client.Event) {
		fmt.Fprintf(out, "* identity client=%s user=%s\n", ev.Identity.Client, ev.Identity.User)
	})
	c.On(client.EventData, func(ev client.Event) {
		fmt.Fprintf(out, "< %s: %s\n", ev.Message.Sender, string(ev.Data))
	})
	c.On(client.EventUnauthorized, func(ev client.Event) {
		fmt.Fprintf(out, "! unauthorized: %v\n", ev.Err)
	})
	c.On(client.EventError, func(ev client.Event) {
		logging.Warnf("lpioctl.event err=%v", ev.Err)
	})
}

func serveMetrics(addr string) func() {
	observability.RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf("lpioctl.metrics addr=%s err=%v", addr, err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
