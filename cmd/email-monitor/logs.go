package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"email-monitor-go/internal/apiclient"
	"email-monitor-go/internal/app"
	"email-monitor-go/internal/config"
	"email-monitor-go/internal/logbrowser"
)

const tokenEnv = "EMAIL_MONITOR_TOKEN"

type logsOptions struct {
	server string
	email  string
	kind   string
	status string
	limit  int
	page   int
	follow bool
	token  string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print mail log records from the backend",
		Long: "Print one page of mail log records. With --follow the page is\n" +
			"re-fetched on the auto-refresh interval until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.token == "" {
				opts.token = os.Getenv(tokenEnv)
			}
			if opts.token == "" {
				return fmt.Errorf("an access token is required, pass --token or set %s", tokenEnv)
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := app.SetupLogging(cfg.Log); err != nil {
				return err
			}
			api, err := apiclient.New(cfg.API, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLogs(ctx, cmd.OutOrStdout(), api.WithToken(opts.token), cfg.Browser, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.server, "server", "", "filter by server name")
	f.StringVar(&opts.email, "email", "", "filter by sender or recipient")
	f.StringVar(&opts.kind, "kind", "", "filter by kind (mainlog, rejectlog, paniclog)")
	f.StringVar(&opts.status, "status", "", "filter by status (accepted, rejected, deferred, failed)")
	f.IntVar(&opts.limit, "limit", 0, "page size")
	f.IntVar(&opts.page, "page", 1, "page number")
	f.BoolVarP(&opts.follow, "follow", "f", false, "keep refreshing until interrupted")
	f.StringVar(&opts.token, "token", "", "backend access token (default $"+tokenEnv+")")
	return cmd
}

// query builds the browser's initial URL query from the flags
func (o logsOptions) query() url.Values {
	q := url.Values{}
	set := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	set("server", o.server)
	set("email", o.email)
	set("kind", o.kind)
	set("status", o.status)
	if o.limit > 0 {
		q.Set("limit", strconv.Itoa(o.limit))
	}
	if o.page > 0 {
		q.Set("page", strconv.Itoa(o.page))
	}
	return q
}

func runLogs(ctx context.Context, out io.Writer, src logbrowser.Source, cfg config.BrowserConfig, opts logsOptions) error {
	paging := logbrowser.DefaultPaging
	if len(cfg.PageSizes) > 0 {
		paging = logbrowser.Paging{Sizes: cfg.PageSizes, DefaultLimit: cfg.DefaultLimit}
	}

	// only views that end a fetch are printed
	results := make(chan logbrowser.View, 1)
	wasLoading := false
	onChange := func(v logbrowser.View) {
		finished := wasLoading && !v.Loading
		wasLoading = v.Loading
		if !finished {
			return
		}
		select {
		case results <- v:
		default:
			// the printer is behind; replace the queued view with the newer one
			select {
			case <-results:
			default:
			}
			results <- v
		}
	}

	b := logbrowser.New(logbrowser.Options{
		Source:       src,
		Paging:       paging,
		Debounce:     cfg.Debounce,
		PollInterval: cfg.PollInterval,
		OnChange:     onChange,
	}, opts.query())
	if err := b.Mount(ctx); err != nil {
		return err
	}
	defer b.Close()
	if !opts.follow {
		if err := b.SetAutoRefresh(false); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-results:
			if v.Error != "" {
				if !opts.follow {
					return errors.New(v.Error)
				}
				fmt.Fprintf(out, "error: %s (showing previous page)\n", v.Error)
			}
			printView(out, v, time.Now())
			if !opts.follow {
				return nil
			}
		}
	}
}

func printView(out io.Writer, v logbrowser.View, at time.Time) {
	fmt.Fprintf(out, "# %s  page %d  limit %d  %s\n", at.UTC().Format(time.RFC3339), v.Filter.Page, v.Filter.Limit, v.Query)
	if len(v.Records) == 0 {
		fmt.Fprintln(out, "no log records match the filters")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tKIND\tSTATUS\tSENDER\tRECIPIENT\tMESSAGE")
	for _, r := range v.Records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			r.Kind,
			dash(string(r.Status)),
			dash(r.Sender),
			dash(r.Recipient),
			truncate(r.Message, 60),
		)
	}
	tw.Flush()
	if v.HasNext {
		fmt.Fprintf(out, "more records on page %d\n", v.Filter.Page+1)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
