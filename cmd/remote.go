package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"grimm.is/sentinel/internal/accesslog"
	"grimm.is/sentinel/internal/client"
	"grimm.is/sentinel/internal/events"
	"grimm.is/sentinel/internal/firewall"
	"grimm.is/sentinel/internal/threat"
)

// RunStatus checks that the server is alive.
func RunStatus(ctx context.Context, out io.Writer, remote Remote) error {
	s, err := remote.Client().Health(ctx)
	if err != nil {
		return fmt.Errorf("server unreachable at %s: %w", remote.Addr, err)
	}
	Printer.Fprintf(out, "%s: %s (version %s)\n", remote.Addr, s.Status, s.Version)
	return nil
}

// RunRulesList prints the rule set in priority order.
func RunRulesList(ctx context.Context, out io.Writer, remote Remote) error {
	rules, err := remote.Client().Rules(ctx)
	if err != nil {
		return err
	}
	printRules(out, rules)
	return nil
}

// RunRulesAdd appends a rule and prints it.
func RunRulesAdd(ctx context.Context, out io.Writer, remote Remote, draft firewall.RuleDraft) error {
	rule, err := remote.Client().AddRule(ctx, draft)
	if err != nil {
		return err
	}
	Printer.Fprintf(out, "Added rule %s: %s\n", strconv.Itoa(rule.ID), rule)
	return nil
}

// RunRulesRemove deletes rules by id. Unknown ids are reported but are not
// an error.
func RunRulesRemove(ctx context.Context, out io.Writer, remote Remote, ids []string) error {
	c := remote.Client()
	for _, raw := range ids {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid rule id %q", raw)
		}
		deleted, err := c.DeleteRule(ctx, id)
		if err != nil {
			return err
		}
		if deleted {
			Printer.Fprintf(out, "Deleted rule %s\n", raw)
		} else {
			Printer.Fprintf(out, "Rule %s not found, nothing to delete\n", raw)
		}
	}
	return nil
}

// RunSimulate evaluates count copies of p and prints each decision.
func RunSimulate(ctx context.Context, out io.Writer, remote Remote, p firewall.Packet, count int) error {
	if count < 1 {
		count = 1
	}
	c := remote.Client()
	for i := 0; i < count; i++ {
		d, err := c.Simulate(ctx, p)
		if err != nil {
			return err
		}
		rule := "default"
		if d.RuleID != nil {
			rule = "rule " + strconv.Itoa(*d.RuleID)
		}
		Printer.Fprintf(out, "%s:%s/%s -> %s (%s)\n",
			p.SourceAddress, strconv.Itoa(p.DestPort), p.Protocol, d.Action, rule)
	}
	return nil
}

// RunLogs prints the access log tail. limit < 0 uses the server default.
func RunLogs(ctx context.Context, out io.Writer, remote Remote, limit int, asJSON bool) error {
	entries, err := remote.Client().Logs(ctx, limit)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, entries)
	}
	printLogs(out, entries)
	return nil
}

// RunThreats prints detected threats.
func RunThreats(ctx context.Context, out io.Writer, remote Remote, asJSON bool) error {
	threats, err := remote.Client().Threats(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, threats)
	}
	printThreats(out, threats)
	Printer.Fprintf(out, "%d threats\n", len(threats))
	return nil
}

// RunReport downloads a report. An empty dir writes it to out; otherwise it
// is saved under dir with the server-suggested filename.
func RunReport(ctx context.Context, out io.Writer, remote Remote, format, dir string) error {
	r, err := remote.Client().Report(ctx, format)
	if err != nil {
		return err
	}
	if dir == "" {
		_, err := out.Write(r.Body)
		return err
	}

	name := r.Filename
	if name == "" {
		name = "security_report." + format
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, r.Body, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	Printer.Fprintf(out, "Report saved to %s (%d bytes)\n", path, len(r.Body))
	return nil
}

// RunWatch streams live events until ctx is cancelled.
func RunWatch(ctx context.Context, out io.Writer, remote Remote, topics []string) error {
	Printer.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", remote.Addr)
	return remote.Client().Watch(ctx, topics, func(e client.Event) {
		fmt.Fprintln(out, formatEvent(e))
	})
}

func formatEvent(e client.Event) string {
	ts := e.Timestamp.Local().Format(accesslog.TimestampLayout)
	switch events.EventType(e.Type) {
	case events.EventRuleAdded:
		var r firewall.Rule
		if json.Unmarshal(e.Data, &r) == nil {
			return fmt.Sprintf("%s %-16s %s", ts, e.Type, r)
		}
	case events.EventRuleRemoved:
		var d events.RuleRemovedData
		if json.Unmarshal(e.Data, &d) == nil {
			return fmt.Sprintf("%s %-16s id=%d", ts, e.Type, d.ID)
		}
	case events.EventPacketEvaluated:
		var p events.PacketData
		if json.Unmarshal(e.Data, &p) == nil {
			return fmt.Sprintf("%s %-16s %s:%d/%s -> %s", ts, e.Type, p.SrcIP, p.DstPort, p.Protocol, p.Action)
		}
	case events.EventThreatRaised, events.EventThreatUpdated:
		var t threat.Threat
		if json.Unmarshal(e.Data, &t) == nil {
			return fmt.Sprintf("%s %-16s %s", ts, e.Type, t)
		}
	}
	return fmt.Sprintf("%s %-16s %s", ts, e.Type, string(e.Data))
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
