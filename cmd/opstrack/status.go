package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
)

type statusRun struct {
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	FindingsCount int        `json:"findings_count"`
	ErrorMessage  string     `json:"error_message"`
}

type statusLoop struct {
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	IntervalMinutes int        `json:"interval_minutes"`
	IsEnabled       bool       `json:"is_enabled"`
	LastRun         *statusRun `json:"last_run"`
}

type statusPayload struct {
	Loops              []statusLoop `json:"loops"`
	TotalRunsToday     int          `json:"total_runs_today"`
	TotalFindingsToday int          `json:"total_findings_today"`
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	statusColor = map[string]lipgloss.Color{
		"completed": lipgloss.Color("2"),
		"failed":    lipgloss.Color("1"),
		"running":   lipgloss.Color("3"),
	}
)

func newStatusCmd() *cobra.Command {
	var apiURL string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show every loop with its last run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: timeout}
			payload, err := fetchStatus(client, apiURL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(payload))
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "opstrack API URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func fetchStatus(client *http.Client, apiURL string) (*statusPayload, error) {
	url := strings.TrimRight(apiURL, "/") + "/api/v1/loops/status"
	resp, err := client.Get(url)
	if err != nil {
		return nil, goerr.Wrap(err, "request loop status", goerr.V("url", url))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, goerr.New("unexpected status from API",
			goerr.V("url", url), goerr.V("status", resp.StatusCode), goerr.V("body", string(body)))
	}

	var payload statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, goerr.Wrap(err, "decode loop status")
	}
	return &payload, nil
}

func renderStatus(p *statusPayload) string {
	rows := make([][]string, 0, len(p.Loops))
	for _, l := range p.Loops {
		enabled := "yes"
		if !l.IsEnabled {
			enabled = "no"
		}
		last, findings, lastErr := "never", "-", ""
		if l.LastRun != nil {
			last = l.LastRun.Status + " " + l.LastRun.StartedAt.Local().Format("2006-01-02 15:04:05")
			findings = strconv.Itoa(l.LastRun.FindingsCount)
			lastErr = l.LastRun.ErrorMessage
		}
		rows = append(rows, []string{l.Name, enabled, strconv.Itoa(l.IntervalMinutes) + "m", last, findings, lastErr})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("LOOP", "ENABLED", "EVERY", "LAST RUN", "FINDINGS", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 3 && row >= 0 && row < len(p.Loops) && p.Loops[row].LastRun != nil {
				if c, ok := statusColor[p.Loops[row].LastRun.Status]; ok {
					return cellStyle.Foreground(c)
				}
			}
			return cellStyle
		})

	summary := titleStyle.Render(fmt.Sprintf("Today: %d runs, %d findings", p.TotalRunsToday, p.TotalFindingsToday))
	return t.Render() + "\n" + summary
}
