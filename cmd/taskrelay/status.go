package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Strob0t/taskrelay/internal/config"
	"github.com/Strob0t/taskrelay/internal/domain/task"
	"github.com/Strob0t/taskrelay/internal/service"
)

var headerStyle = lipgloss.NewStyle().Bold(true)

func newStatusCmd(configPath *string) *cobra.Command {
	var addr, apiKey string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the queue status of a running relay",
		Long:  "Fetches /api/v1/queue/status from a running relay and prints task\ncounts by status and priority plus the task in progress.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				cfg, err := config.LoadFrom(*configPath)
				if err != nil {
					return fmt.Errorf("config: %w", err)
				}
				addr = "http://localhost:" + cfg.Server.Port
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			st, err := fetchStatus(ctx, addr, apiKey)
			if err != nil {
				return err
			}
			return renderStatus(cmd.OutOrStdout(), st)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "relay base URL (defaults to localhost on server.port)")
	f.StringVar(&apiKey, "api-key", "", "API key when auth is enabled") //nolint:gosec // CLI flag
	f.DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func fetchStatus(ctx context.Context, addr, apiKey string) (service.QueueStatus, error) {
	var st service.QueueStatus
	url := strings.TrimRight(addr, "/") + "/api/v1/queue/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return st, fmt.Errorf("build request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, fmt.Errorf("get %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return st, fmt.Errorf("get %s: %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

func renderStatus(w io.Writer, st service.QueueStatus) error {
	fmt.Fprintln(w, headerStyle.Render("Queue"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  total\t%d\n", st.TotalTasks)
	fmt.Fprintf(tw, "  active sessions\t%d\n", st.ActiveSessions)
	if st.CurrentTask != nil {
		fmt.Fprintf(tw, "  in progress\t%s %s (%s)\n", st.CurrentTask.ID, st.CurrentTask.Title, st.CurrentTask.Priority)
	} else {
		fmt.Fprintf(tw, "  in progress\t-\n")
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, headerStyle.Render("By status"))
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range task.Statuses {
		fmt.Fprintf(tw, "  %s\t%d\n", s, st.ByStatus[s])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, headerStyle.Render("By priority"))
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, p := range task.Priorities {
		fmt.Fprintf(tw, "  %s\t%d\n", p, st.ByPriority[p])
	}
	return tw.Flush()
}
