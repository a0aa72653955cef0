package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/farmlink/pkg/client"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured farm-data providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			providers, err := apiClient.Connections().Providers(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list providers: %w", err)
			}
			out := cmd.OutOrStdout()
			if getOutputFormat() != "table" {
				return printOutput(out, providers)
			}

			t := NewTable(out, "ID", "NAME", "SCOPES", "ENDPOINTS")
			for _, p := range providers {
				t.AddRow(p.ID, p.Name, truncate(strings.Join(p.Scopes, " "), 40), strings.Join(p.Endpoints, ","))
			}
			t.Render()
			return nil
		},
	}
}

func newConnectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connection",
		Aliases: []string{"conn", "connections"},
		Short:   "Manage provider connections",
	}

	cmd.AddCommand(newConnectionListCmd())
	cmd.AddCommand(newConnectionStatusCmd())
	cmd.AddCommand(newConnectionAuthorizeCmd())
	cmd.AddCommand(newConnectionConnectCmd())
	cmd.AddCommand(newConnectionDisconnectCmd())
	cmd.AddCommand(newConnectionFetchCmd())

	return cmd
}

func newConnectionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the connection status of every provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := apiClient.Connections().List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list connections: %w", err)
			}
			out := cmd.OutOrStdout()
			if getOutputFormat() != "table" {
				return printOutput(out, statuses)
			}

			t := NewTable(out, "PROVIDER", "STATUS", "USABLE", "AVAILABLE", "MESSAGE")
			for _, s := range statuses {
				t.AddRow(s.Provider, formatStatus(s.Status), strconv.FormatBool(s.Usable),
					availableRatio(s.Capabilities), truncate(s.Message, 60))
			}
			t.Render()
			return nil
		},
	}
}

func newConnectionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <provider>",
		Short: "Check one provider connection and its data sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := apiClient.Connections().Status(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to check connection: %w", err)
			}
			return renderStatus(cmd.OutOrStdout(), status)
		},
	}
}

func newConnectionAuthorizeCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "authorize <provider>",
		Short: "Print the consent URL that starts a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := apiClient.Connections().AuthorizeURL(cmd.Context(), args[0], state)
			if err != nil {
				return fmt.Errorf("failed to build authorization URL: %w", err)
			}
			out := cmd.OutOrStdout()
			if getOutputFormat() != "table" {
				return printOutput(out, auth)
			}
			fmt.Fprintf(out, "Open this URL to connect %s:\n\n  %s\n\n", auth.Provider, auth.URL)
			fmt.Fprintf(out, "Then run: farmlink connection connect %s <code>\n", auth.Provider)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "OAuth state parameter (generated by the server when empty)")
	return cmd
}

func newConnectionConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <provider> <code>",
		Short: "Complete a connection with the authorization code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := apiClient.Connections().Connect(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			return renderStatus(cmd.OutOrStdout(), status)
		},
	}
}

func newConnectionDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <provider>",
		Short: "Remove the stored authorization for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Connections().Disconnect(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to disconnect: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Disconnected %s\n", args[0])
			return nil
		},
	}
}

func newConnectionFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <provider> <endpoint>",
		Short: "Fetch data from one provider endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := apiClient.Connections().Fetch(cmd.Context(), args[0], args[1])
			if err != nil {
				if url := remediationURL(err); url != "" {
					return fmt.Errorf("failed to fetch: %w (visit %s)", err, url)
				}
				return fmt.Errorf("failed to fetch: %w", err)
			}
			out := cmd.OutOrStdout()
			if getOutputFormat() != "table" {
				return printOutput(out, result)
			}
			return renderFetch(out, result)
		},
	}
}

func renderStatus(out io.Writer, s *client.ConnectionStatus) error {
	if getOutputFormat() != "table" {
		return printOutput(out, s)
	}

	fmt.Fprintf(out, "Provider: %s\n", s.Provider)
	fmt.Fprintf(out, "Status:   %s\n", formatStatus(s.Status))
	fmt.Fprintf(out, "Message:  %s\n", s.Message)
	for _, link := range s.RemediationLinks {
		fmt.Fprintf(out, "Action:   %s\n", link)
	}

	if len(s.Capabilities) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	t := NewTable(out, "ENDPOINT", "AVAILABLE", "ITEMS", "DURATION")
	for _, c := range s.Capabilities {
		kind := ""
		if c.Error != nil {
			kind = c.Error.Kind
		}
		t.AddRow(c.Endpoint, formatAvailability(c.Available, kind),
			strconv.Itoa(c.ItemCount), fmt.Sprintf("%dms", c.DurationMs))
	}
	t.Render()
	return nil
}

func renderFetch(out io.Writer, r *client.FetchResult) error {
	source := "live"
	if r.Sample {
		source = "sample"
	}
	fmt.Fprintf(out, "%s/%s: %d items (%s)\n", r.Provider, r.Endpoint, r.ItemCount, source)
	if len(r.Items) == 0 {
		return nil
	}
	var items interface{}
	if err := json.Unmarshal(r.Items, &items); err != nil {
		return fmt.Errorf("failed to decode items: %w", err)
	}
	return printJSON(out, items)
}

func availableRatio(caps []client.Capability) string {
	if len(caps) == 0 {
		return "-"
	}
	n := 0
	for _, c := range caps {
		if c.Available {
			n++
		}
	}
	return fmt.Sprintf("%d/%d", n, len(caps))
}

func remediationURL(err error) string {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return ""
	}
	return apiErr.RemediationURL()
}
