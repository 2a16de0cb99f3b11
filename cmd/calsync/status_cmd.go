package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"github.com/openmined/calsync/internal/client/controlplane"
	"github.com/openmined/calsync/internal/client/handlers"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-entry sync status from the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			baseURL, err := controlplane.AddrToURL(cfg.HTTPAddr)
			if err != nil {
				return err
			}
			if envURL := os.Getenv(envPrefix + "_CLIENT_URL"); envURL != "" {
				baseURL = envURL
			}

			raw, _ := cmd.Flags().GetBool("raw")
			status, body, err := fetchStatus(cmd.Context(), baseURL, cfg.HTTPToken)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), red.Render("daemon unreachable: "+err.Error()))
				return err
			}

			if raw {
				_, err = cmd.OutOrStdout().Write(append(body, '\n'))
				return err
			}
			renderStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	statusCmd.Flags().Bool("raw", false, "print raw json")
	statusCmd.Flags().StringP("http-addr", "a", "", "Address of the local control plane")
	statusCmd.Flags().StringP("http-token", "t", "", "Access token for the local control plane")
	return statusCmd
}

func fetchStatus(ctx context.Context, baseURL, token string) (*handlers.StatusResponse, []byte, error) {
	client := req.C().
		SetTimeout(5 * time.Second).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal)

	var status handlers.StatusResponse
	var apiErr handlers.ControlPlaneError

	r := client.R().
		SetContext(ctx).
		SetSuccessResult(&status).
		SetErrorResult(&apiErr)
	if token != "" {
		r.SetBearerAuthToken(token)
	}

	resp, err := r.Get(baseURL + "/v1/status")
	if err != nil {
		return nil, nil, err
	}
	if resp.IsErrorState() {
		if apiErr.Error != "" {
			return nil, nil, fmt.Errorf("%s (%s)", apiErr.Error, apiErr.ErrorCode)
		}
		return nil, nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return &status, resp.Bytes(), nil
}

func renderStatus(w io.Writer, status *handlers.StatusResponse) {
	header := fmt.Sprintf("calsync %s  mode=%s", status.Version, status.Mode)
	if status.Reloader != "" {
		header += "  reloader=" + status.Reloader
	}
	fmt.Fprintln(w, cyan.Render(header))

	rows := make([][]string, 0, len(status.Entries))
	for _, e := range status.Entries {
		lastErr := "-"
		if e.LastError != "" {
			lastErr = e.LastError
		}
		rows = append(rows, []string{
			strconv.Itoa(e.Index),
			e.Local,
			e.Remote,
			e.Regime,
			ago(e.LastPush),
			ago(e.LastPull),
			lastErr,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(gray).
		Headers("#", "LOCAL", "REMOTE", "REGIME", "PUSHED", "PULLED", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return style.Bold(true)
			case col == 6 && rows[row][col] != "-":
				return style.Inherit(red)
			case col == 3 && rows[row][col] == "fast":
				return style.Inherit(green)
			}
			return style.Inherit(lightGray)
		})

	fmt.Fprintln(w, t.Render())
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
