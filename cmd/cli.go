// Package cmd implements the sentinel subcommands.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"grimm.is/sentinel/internal/accesslog"
	"grimm.is/sentinel/internal/client"
	"grimm.is/sentinel/internal/firewall"
	"grimm.is/sentinel/internal/i18n"
	"grimm.is/sentinel/internal/threat"
)

// Printer is the global message printer for the CLI. Use it for prose and
// counts; tables print ids and ports with fmt so they are never grouped.
var Printer = i18n.NewCLIPrinter(os.Getenv)

// Remote holds options shared by commands that talk to a running server.
type Remote struct {
	Addr    string
	Timeout time.Duration
}

// Client builds an API client for the remote.
func (r Remote) Client() *client.HTTPClient {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return client.NewHTTPClient(r.Addr, client.WithTimeout(timeout))
}

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

func printRules(out io.Writer, rules []firewall.Rule) {
	if len(rules) == 0 {
		Printer.Fprintln(out, "No rules configured.")
		return
	}
	w := newTable(out)
	fmt.Fprintln(w, "ID\tACTION\tSOURCE\tPORT\tPROTOCOL")
	for _, r := range rules {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", r.ID, r.Action, r.SourceSpec, r.DestPort, r.Protocol)
	}
	w.Flush()
}

func printLogs(out io.Writer, entries []accesslog.Entry) {
	if len(entries) == 0 {
		Printer.Fprintln(out, "No log entries.")
		return
	}
	w := newTable(out)
	fmt.Fprintln(w, "TIMESTAMP\tSOURCE\tPORT\tPROTOCOL\tACTION")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			e.Timestamp.Format(accesslog.TimestampLayout), e.SourceAddress, e.DestPort, e.Protocol, e.Action)
	}
	w.Flush()
}

func printThreats(out io.Writer, threats []threat.Threat) {
	if len(threats) == 0 {
		Printer.Fprintln(out, "No threats detected.")
		return
	}
	w := newTable(out)
	fmt.Fprintln(w, "TYPE\tSOURCE\tCOUNT\tLAST SEEN\tDETAILS")
	for _, t := range threats {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			t.Type, t.SourceAddress, t.Count, t.LastSeen.Local().Format(accesslog.TimestampLayout), t.Details)
	}
	w.Flush()
}

// SplitTopics parses a comma-separated topic list, dropping blanks.
func SplitTopics(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
