package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Table renders data as a formatted table.
type Table struct {
	headers []string
	rows    [][]string
	writer  io.Writer
}

// NewTable creates a new table with the given headers.
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{
		headers: headers,
		writer:  w,
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cols ...string) {
	t.rows = append(t.rows, cols)
}

// Render writes the table to its writer.
func (t *Table) Render() {
	w := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(t.headers, "\t"))

	sep := make([]string, len(t.headers))
	for i, h := range t.headers {
		sep[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(sep, "\t"))

	for _, row := range t.rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	w.Flush()
}

// printOutput prints data in the requested format.
// Table callers render themselves; anything else falls back to JSON.
func printOutput(w io.Writer, data interface{}) error {
	switch getOutputFormat() {
	case "yaml":
		return printYAML(w, data)
	default:
		return printJSON(w, data)
	}
}

func printJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printYAML(w io.Writer, data interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(data)
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// formatStatus returns a connection status with a visual indicator.
func formatStatus(status string) string {
	switch status {
	case "connected":
		return "[+] " + status
	case "partially_connected":
		return "[~] " + status
	case "connection_required", "auth_required":
		return "[!] " + status
	case "disconnected":
		return "[-] " + status
	default:
		return status
	}
}

// formatAvailability renders a capability probe outcome.
func formatAvailability(available bool, kind string) string {
	if available {
		return "yes"
	}
	if kind == "" {
		return "no"
	}
	return "no (" + kind + ")"
}
