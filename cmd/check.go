package cmd

import (
	"fmt"
	"io"

	"grimm.is/sentinel/internal/brand"
	"grimm.is/sentinel/internal/config"
	"grimm.is/sentinel/internal/firewall"
)

// CheckOptions configures RunCheck.
type CheckOptions struct {
	Verbose bool
	// PrintHCL writes the normalized configuration back out as HCL.
	PrintHCL bool
}

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(out io.Writer, configFile string, opts CheckOptions) error {
	if configFile == "" {
		return fmt.Errorf("usage: %s check [-v] [-print] <config-file>\nExample: %s check -v %s",
			brand.BinaryName, brand.BinaryName, brand.GetConfigPath())
	}

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	if opts.PrintHCL {
		_, err := out.Write(config.GenerateHCL(cfg))
		return err
	}

	Printer.Fprintf(out, "Configuration valid!\n")
	Printer.Fprintf(out, "Schema Version: %s\n", cfg.SchemaVersion)
	Printer.Fprintf(out, "Default Action: %s\n", cfg.DefaultAction)
	Printer.Fprintf(out, "Listen:         %s\n", cfg.API.Listen)
	Printer.Fprintf(out, "Seed Rules:     %d\n", len(cfg.Rules))

	if opts.Verbose {
		td := cfg.ThreatDetection
		Printer.Fprintln(out)
		Printer.Fprintf(out, "Access log retention: %d entries\n", *cfg.AccessLog.MaxEntries)
		Printer.Fprintf(out, "Threat window:        %s (port scan >= %d ports, brute force >= %d attempts)\n",
			td.Window, td.PortScanThreshold, td.BruteForceThreshold)
		Printer.Fprintf(out, "Rate limit:           %d mutations/min per client\n", *cfg.API.RateLimit)
		Printer.Fprintf(out, "Metrics:              %t\n", cfg.MetricsEnabled())
		Printer.Fprintln(out)

		rules, err := seedPreview(cfg)
		if err != nil {
			return err
		}
		printRules(out, rules)
	}
	return nil
}

// seedPreview compiles the seed rules into a scratch store so they can be
// shown with the ids they will receive at startup.
func seedPreview(cfg *config.Config) ([]firewall.Rule, error) {
	store := firewall.NewRuleStore()
	for i, r := range cfg.Rules {
		if _, err := store.Add(r.Draft()); err != nil {
			return nil, fmt.Errorf("seed rule %d: %w", i, err)
		}
	}
	return store.List(), nil
}
