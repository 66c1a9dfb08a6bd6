package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/erauner12/propsync/internal/auth"
	"github.com/erauner12/propsync/internal/channel"
	"github.com/erauner12/propsync/internal/client"
	"github.com/erauner12/propsync/internal/live"
	"github.com/erauner12/propsync/internal/metrics"
)

var (
	watchJSON        bool
	watchMetricsAddr string
	watchWorkers     int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Mount the dashboard and print it whenever it changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watch(ctx, cmd.OutOrStdout())
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Print each dashboard as one JSON line")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	watchCmd.Flags().IntVar(&watchWorkers, "workers", 2, "Concurrent background reloads")
	rootCmd.AddCommand(watchCmd)
}

func watch(ctx context.Context, out io.Writer) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	sess := auth.NewSession(credentials(cfg), func(reason string) {
		cancel(&client.AuthError{Reason: reason})
	})
	api := client.NewHTTPClient(cfg.APIBaseURL, sess)

	me, err := api.Me(ctx)
	if err != nil {
		return err
	}

	if watchMetricsAddr != "" {
		srv := &http.Server{Addr: watchMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Str("addr", watchMetricsAddr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer srv.Close()
	}

	socketURL := cfg.SocketURL()
	shared := channel.NewShared(func() channel.Conn {
		return channel.Dial(ctx, socketURL, sess, nil)
	})

	v, err := live.Mount(ctx, live.Options{
		Identity: me,
		API:      api,
		Channel:  shared,
		FeedCap:  cfg.ActivityCap,
		TrayCap:  cfg.TrayCap,
		Workers:  watchWorkers,
	})
	if err != nil {
		return err
	}
	defer v.Unmount()

	log.Info().
		Str("user", me.Email).
		Str("role", string(me.Role)).
		Str("socket", socketURL).
		Msg("watching dashboard")

	if err := render(out, v.Dashboard()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			if cause := context.Cause(ctx); cause != ctx.Err() {
				return cause
			}
			return nil
		case <-v.Changes():
			if err := render(out, v.Dashboard()); err != nil {
				return err
			}
		}
	}
}

func render(out io.Writer, d live.Dashboard) error {
	if watchJSON {
		return json.NewEncoder(out).Encode(d)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s  %s (%s)\n", time.Now().Format("15:04:05"), d.User.Email, d.User.Role)
	fmt.Fprintf(&b, "  properties %d  active tenancies %d  pending maintenance %d (urgent %d)  revenue %.2f\n",
		d.Summary.TotalProperties, d.Summary.ActiveTenancies,
		d.Summary.PendingMaintenance, d.Summary.UrgentMaintenance, d.Summary.MonthlyRevenue)

	names := make([]string, 0, len(d.Collections))
	for name := range d.Collections {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(&b, "  %-16s %d\n", name, len(d.Collections[name]))
	}

	if len(d.Activity) > 0 {
		b.WriteString("  recent activity:\n")
		for _, a := range d.Activity {
			fmt.Fprintf(&b, "    [%s] %s  %s\n", a.Severity, a.Time.Local().Format("Jan 2 15:04"), a.Message)
		}
	}
	if d.Unread > 0 {
		fmt.Fprintf(&b, "  %d unread notification(s)\n", d.Unread)
	}

	_, err := io.WriteString(out, b.String())
	return err
}
