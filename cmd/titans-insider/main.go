package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/common/expfmt"

	"github.com/brct-james/titans-insider/pkg/insider"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "rules":
		err = rulesCommand(os.Args[2:])
	case "history":
		err = historyCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("titans-insider %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to sniffer configuration file")
	once := fs.Bool("once", false, "Run a single cycle and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := insider.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*once {
		return flow.Run(ctx)
	}

	rt, err := flow.StreamOUT()
	if err != nil {
		return err
	}
	defer rt.Shutdown(context.Background())

	report, err := rt.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("fetched=%d kept=%d replayed=%d inserted=%d skipped=%t took=%s\n",
		report.Fetched, report.Kept, report.Replayed, report.Inserted, report.Skipped,
		report.Duration.Round(time.Millisecond))
	return nil
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := insider.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func rulesCommand(args []string) error {
	fs := flag.NewFlagSet("rules", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := insider.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	set, err := insider.LoadRules(cfg.Rules.Pattern)
	if err != nil {
		return err
	}
	printRules(os.Stdout, set)
	return nil
}

func printRules(out io.Writer, set insider.RuleSet) {
	names := make(map[string]struct{}, set.Len())
	for name := range set.Staleness {
		names[name] = struct{}{}
	}
	for name := range set.Profit {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTALE AFTER\tMIN PROFIT")
	for _, name := range sorted {
		stale, profit := "-", "-"
		if d, ok := set.StaleAfter(name); ok {
			stale = d.String()
		}
		if p, ok := set.MinProfit(name); ok {
			profit = strconv.FormatUint(uint64(p), 10)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, stale, profit)
	}
	tw.Flush()
	fmt.Fprintf(out, "%d rules from %d files\n", set.Len(), len(set.Files))
}

func historyCommand(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file")
	uid := fs.String("uid", "", "Item uid to look up")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *uid == "" {
		return fmt.Errorf("-uid is required")
	}

	cfg, err := insider.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	rt, err := insider.NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rows, err := rt.History(ctx, *uid)
	if err != nil {
		return err
	}
	printHistory(os.Stdout, rows)
	return nil
}

// printHistory renders rows grouped by transaction type, oldest listing first.
func printHistory(out io.Writer, rows []insider.HistoryRecord) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TType != rows[j].TType {
			return rows[i].TType < rows[j].TType
		}
		return rows[i].CreatedAt < rows[j].CreatedAt
	})

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "T_TYPE\tCREATED_AT\tGOLD\tGEMS\tQTY\tTIER\tORDER\tCITY\tCYCLE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\t%d\n",
			r.TType, r.CreatedAt, r.GoldPrice, r.GemsPrice, r.GoldQty+r.GemsQty,
			optInt(r.Tier), optInt(r.Order), optInt(r.CityID), r.RequestCycle)
	}
	tw.Flush()
	fmt.Fprintf(out, "%d rows\n", len(rows))
}

func optInt(v *int32) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(int64(*v), 10)
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := resty.New().SetTimeout(*interval)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(ctx, client, *url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsTargets = []string{
	"insider_cycles_total",
	"insider_cycle_failures_total",
	"insider_rows_inserted_total",
	"insider_rows_conflicted_total",
	"insider_wal_pending_records",
}

func printMetricsSnapshot(ctx context.Context, client *resty.Client, url string) error {
	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("unexpected status %s", resp.Status())
	}

	values, err := scrape(resp.Body(), statsTargets)
	if err != nil {
		return err
	}
	fmt.Printf("[%s] cycles=%.0f failures=%.0f inserted=%.0f conflicted=%.0f wal_pending=%.0f\n",
		time.Now().Format(time.RFC3339),
		values["insider_cycles_total"],
		values["insider_cycle_failures_total"],
		values["insider_rows_inserted_total"],
		values["insider_rows_conflicted_total"],
		values["insider_wal_pending_records"],
	)
	return nil
}

// scrape reads counter and gauge values for names from a text exposition body.
func scrape(body []byte, names []string) (map[string]float64, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(names))
	for _, name := range names {
		mf, ok := families[name]
		if !ok || len(mf.GetMetric()) == 0 {
			continue
		}
		m := mf.GetMetric()[0]
		switch {
		case m.GetCounter() != nil:
			out[name] = m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			out[name] = m.GetGauge().GetValue()
		}
	}
	return out, nil
}

func printUsage() {
	fmt.Printf(`titans-insider

Usage:
  titans-insider <command> [flags]

Commands:
  run        Start the sniffer using the provided config
  validate   Load and validate a config file without starting the sniffer
  rules      Print the item rules loaded from the rule files
  history    Print stored history for one item uid
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  titans-insider run -config ./config.yaml
  titans-insider run -config ./config.yaml -once
  titans-insider validate -config ./config.yaml
  titans-insider history -config ./config.yaml -uid ironsword
  titans-insider stats -url http://localhost:9100/metrics -interval 1s
`)
}
