package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/sentinel/internal/config"
	"grimm.is/sentinel/internal/firewall"
)

// RunRulesDiff compares the seed rules in configFile against the rule set of
// the running server. Ids are ignored; order and content are compared.
func RunRulesDiff(ctx context.Context, out io.Writer, remote Remote, configFile string) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	want, err := seedPreview(cfg)
	if err != nil {
		return err
	}

	running, err := remote.Client().Rules(ctx)
	if err != nil {
		return err
	}

	a, b := ruleLines(want), ruleLines(running)
	if a == b {
		Printer.Fprintf(out, "Running rules match %s (%d rules)\n", configFile, len(want))
		return nil
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: configFile,
		ToFile:   remote.Addr,
		Context:  3,
	})
	if err != nil {
		return err
	}
	fmt.Fprint(out, text)
	return fmt.Errorf("running rules differ from configuration")
}

func ruleLines(rules []firewall.Rule) string {
	var sb strings.Builder
	for _, r := range rules {
		fmt.Fprintf(&sb, "%s %s %d %s\n", r.Action, r.SourceSpec, r.DestPort, r.Protocol)
	}
	return sb.String()
}
