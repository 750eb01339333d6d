package cmd

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var brokerURL string

var rootCmd = &cobra.Command{
	Use:   "ptyclient",
	Short: "Open a terminal session on a PTY broker",
	Long: `ptyclient connects the local terminal to a shell on a PTY broker.

Keystrokes are sent as they are typed and the remote shell's output is
written straight to the terminal. Window size changes are forwarded.
The session ends when the remote shell exits or the broker closes it.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
		defer stop()

		wsURL, err := terminalURL(brokerURL)
		if err != nil {
			return err
		}
		return attach(ctx, wsURL, os.Stdin, os.Stdout, os.Stderr)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&brokerURL, "url", getEnvOrDefault("PTYBROKER_URL", "http://localhost:3000"), "PTY broker base URL")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// terminalURL maps the broker base URL to its WebSocket endpoint.
func terminalURL(base string) (string, error) {
	u, err := parseBase(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// apiURL maps the broker base URL to an HTTP endpoint.
func apiURL(base, path string) (string, error) {
	u, err := parseBase(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String(), nil
}

func parseBase(base string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("invalid broker URL %q: unsupported scheme", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws")
	u.RawQuery = ""
	return u, nil
}
