package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grimm.is/sentinel/cmd"
	"grimm.is/sentinel/internal/brand"
	"grimm.is/sentinel/internal/firewall"
)

var printer = cmd.Printer

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		configFile := serveFlags.String("config", brand.GetConfigPath(), "Configuration file")
		serveFlags.StringVar(configFile, "c", brand.GetConfigPath(), "Configuration file (short)")
		listen := serveFlags.String("listen", "", "Listen address (overrides api.listen)")
		serveFlags.Parse(os.Args[2:])

		err = cmd.RunServe(ctx, cmd.ServeOptions{ConfigFile: *configFile, Listen: *listen})

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("v", false, "Verbose output (settings and seed rules)")
		printHCL := checkFlags.Bool("print", false, "Print the normalized configuration as HCL")
		checkFlags.Parse(os.Args[2:])

		configFile := checkFlags.Arg(0)
		if configFile == "" {
			configFile = brand.GetConfigPath()
		}
		err = cmd.RunCheck(os.Stdout, configFile, cmd.CheckOptions{Verbose: *verbose, PrintHCL: *printHCL})

	case "status":
		fs, remote := remoteFlags("status")
		fs.Parse(os.Args[2:])
		err = cmd.RunStatus(ctx, os.Stdout, *remote)

	case "rules":
		err = runRules(ctx, os.Args[2:])

	case "simulate":
		fs, remote := remoteFlags("simulate")
		src := fs.String("src", "", "Source IP address")
		port := fs.Int("port", 0, "Destination port")
		proto := fs.String("proto", "TCP", "Protocol (TCP, UDP, ICMP)")
		count := fs.Int("n", 1, "Number of packets to send")
		fs.Parse(os.Args[2:])

		if *src == "" {
			printer.Fprintf(os.Stderr, "Usage: %s simulate -src <ip> -port <port> [-proto TCP] [-n 1]\n", brand.BinaryName)
			os.Exit(1)
		}
		err = cmd.RunSimulate(ctx, os.Stdout, *remote,
			firewall.Packet{SourceAddress: *src, DestPort: *port, Protocol: firewall.Protocol(*proto)}, *count)

	case "logs":
		fs, remote := remoteFlags("logs")
		limit := fs.Int("n", -1, "Number of entries (0 = all, default: server setting)")
		asJSON := fs.Bool("json", false, "Print JSON")
		fs.Parse(os.Args[2:])
		err = cmd.RunLogs(ctx, os.Stdout, *remote, *limit, *asJSON)

	case "threats":
		fs, remote := remoteFlags("threats")
		asJSON := fs.Bool("json", false, "Print JSON")
		fs.Parse(os.Args[2:])
		err = cmd.RunThreats(ctx, os.Stdout, *remote, *asJSON)

	case "report":
		fs, remote := remoteFlags("report")
		format := fs.String("format", "json", "Report format (json, yaml)")
		dir := fs.String("o", "", "Directory to save the report in (default: stdout)")
		fs.Parse(os.Args[2:])
		err = cmd.RunReport(ctx, os.Stdout, *remote, *format, *dir)

	case "watch":
		fs, remote := remoteFlags("watch")
		topics := fs.String("topics", "", "Comma-separated topics: rules, logs, threats (default: all)")
		fs.Parse(os.Args[2:])
		err = cmd.RunWatch(ctx, os.Stdout, *remote, cmd.SplitTopics(*topics))

	case "version":
		printer.Printf("%s version %s\n", brand.Name, brand.Version)
		printer.Printf("Build: %s (%s)\n", brand.BuildTime, brand.GitCommit)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		printer.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runRules(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		sub, args = args[0], args[1:]
	}

	switch sub {
	case "list", "ls":
		fs, remote := remoteFlags("rules list")
		fs.Parse(args)
		return cmd.RunRulesList(ctx, os.Stdout, *remote)

	case "add":
		fs, remote := remoteFlags("rules add")
		action := fs.String("action", "DENY", "ALLOW or DENY")
		src := fs.String("src", "any", "Source IP, CIDR or any")
		port := fs.Int("port", -1, "Destination port")
		proto := fs.String("proto", "ANY", "Protocol (TCP, UDP, ICMP, ANY)")
		fs.Parse(args)
		return cmd.RunRulesAdd(ctx, os.Stdout, *remote, firewall.RuleDraft{
			Action: *action, SrcIP: *src, DstPort: *port, Protocol: *proto,
		})

	case "rm", "delete":
		fs, remote := remoteFlags("rules rm")
		fs.Parse(args)
		if fs.NArg() == 0 {
			printer.Fprintf(os.Stderr, "Usage: %s rules rm <id>...\n", brand.BinaryName)
			os.Exit(1)
		}
		return cmd.RunRulesRemove(ctx, os.Stdout, *remote, fs.Args())

	case "diff":
		fs, remote := remoteFlags("rules diff")
		configFile := fs.String("config", brand.GetConfigPath(), "Configuration file")
		fs.StringVar(configFile, "c", brand.GetConfigPath(), "Configuration file (shorthand)")
		fs.Parse(args)
		return cmd.RunRulesDiff(ctx, os.Stdout, *remote, *configFile)
	}

	printer.Fprintf(os.Stderr, "Unknown rules command: %s (list, add, rm, diff)\n", sub)
	os.Exit(1)
	return nil
}

// remoteFlags registers the flags shared by commands that talk to a server.
func remoteFlags(name string) (*flag.FlagSet, *cmd.Remote) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	remote := &cmd.Remote{}
	fs.StringVar(&remote.Addr, "addr", brand.GetAPIAddr(), "Server URL (env "+brand.ConfigEnvPrefix+"_ADDR)")
	fs.DurationVar(&remote.Timeout, "timeout", 10*time.Second, "Request timeout")
	return fs, remote
}

func printUsage() {
	printer.Printf("%s - firewall decision engine\n\n", brand.Name)
	printer.Printf("Usage: %s <command> [options]\n\n", brand.BinaryName)
	printer.Println("Server:")
	printer.Println("  serve      Run the engine and HTTP API (-c config, -listen addr)")
	printer.Println("  check      Validate a configuration file (-v, -print)")
	printer.Println()
	printer.Println("Remote (-addr URL):")
	printer.Println("  status     Check that the server is alive")
	printer.Println("  rules      Manage rules (list | add | rm <id> | diff -c <config>)")
	printer.Println("  simulate   Evaluate a packet (-src, -port, -proto, -n)")
	printer.Println("  logs       Show the access log tail (-n, -json)")
	printer.Println("  threats    Show detected threats (-json)")
	printer.Println("  report     Download a report (-format json|yaml, -o dir)")
	printer.Println("  watch      Stream live events (-topics rules,logs,threats)")
	printer.Println()
	printer.Println("  version    Show version information")
}
