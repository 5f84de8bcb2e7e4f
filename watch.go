package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/waypoint/internal/watcher"
)

// newWatchCmd subscribes to a running server's change stream and prints
// each event as it arrives. Mainly a debugging aid, and a live check that
// the /events endpoint behaves.
func newWatchCmd() *cobra.Command {
	var serverURL string
	var accessToken string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream filesystem change events from a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if accessToken == "" {
				accessToken = os.Getenv("WAYPOINT_TOKEN")
			}

			if accessToken == "" {
				return fmt.Errorf("an access token is required (--token or WAYPOINT_TOKEN)")
			}

			wsURL, err := eventsURL(serverURL, accessToken)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, _, err := websocket.Dial(ctx, wsURL, nil)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", serverURL, err)
			}
			defer conn.Close(websocket.StatusNormalClosure, "")

			for {
				_, data, readErr := conn.Read(ctx)
				if readErr != nil {
					if ctx.Err() != nil {
						return nil
					}

					return fmt.Errorf("event stream closed: %w", readErr)
				}

				var batch struct {
					Events []watcher.Event `json:"events"`
				}
				if jsonErr := json.Unmarshal(data, &batch); jsonErr != nil {
					continue
				}

				for _, ev := range batch.Events {
					fmt.Fprintf(cmd.OutOrStdout(), "%-9s %s\n", ev.Change, ev.Path)
				}
			}
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8000", "server base URL")
	cmd.Flags().StringVar(&accessToken, "token", "", "access token (defaults to WAYPOINT_TOKEN)")

	return cmd
}

// eventsURL converts a server base URL into the /events WebSocket URL
// with the token attached.
func eventsURL(base, accessToken string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", base, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/events"
	u.RawQuery = url.Values{"token": {accessToken}}.Encode()

	return u.String(), nil
}
