package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

type sessionInfo struct {
	ID        string    `json:"id"`
	Remote    string    `json:"remote"`
	Shell     string    `json:"shell"`
	Pid       int       `json:"pid"`
	Cols      int       `json:"cols"`
	Rows      int       `json:"rows"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	BytesIn   int64     `json:"bytes_in"`
	BytesOut  int64     `json:"bytes_out"`
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List live sessions on the broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		var resp struct {
			Sessions []sessionInfo `json:"sessions"`
		}
		if err := call(ctx, http.MethodGet, "/sessions", &resp); err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := sonic.ConfigStd.MarshalIndent(resp.Sessions, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(resp.Sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tREMOTE\tSHELL\tPID\tSIZE\tAGE\tIN\tOUT")
		for _, s := range resp.Sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%dx%d\t%s\t%d\t%d\n",
				s.ID, s.Remote, s.Shell, s.Pid, s.Cols, s.Rows,
				time.Since(s.StartedAt).Round(time.Second), s.BytesIn, s.BytesOut)
		}
		return w.Flush()
	},
}

var killCmd = &cobra.Command{
	Use:   "kill <session-id>",
	Short: "Terminate a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if err := call(ctx, http.MethodDelete, "/sessions/"+args[0], nil); err != nil {
			return fmt.Errorf("failed to kill session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s terminated\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd, killCmd)
	sessionsCmd.Flags().Bool("json", false, "Output as JSON")
}

// call performs a request against the broker API and decodes the JSON
// response into out, when out is non-nil.
func call(ctx context.Context, method, path string, out any) error {
	endpoint, err := apiURL(brokerURL, path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if sonic.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return sonic.Unmarshal(body, out)
}

