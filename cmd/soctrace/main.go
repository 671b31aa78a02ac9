package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"soctrace/config"
	"soctrace/internal/correlate"
	"soctrace/internal/detect"
	"soctrace/internal/ingest"
	inputredis "soctrace/internal/input/redis"
	"soctrace/internal/logger"
	"soctrace/internal/metrics"
	"soctrace/internal/narrative"
	"soctrace/internal/output/alerthttp"
	"soctrace/internal/output/alertjson"
	"soctrace/internal/report"
	"soctrace/pkg/models"
)

const banner = `
  ___  ___   ___ _____ ___    _   ___ ___
 / __|/ _ \ / __|_   _| _ \  /_\ / __| __|
 \__ \ (_) | (__  | | |   / / _ \ (__| _|
 |___/\___/ \___| |_| |_|_\/_/ \_\___|___|
        log detection & correlation
`

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

var (
	configFile string
	useRedis   bool
)

func main() {
	root := &cobra.Command{
		Use:          "soctrace",
		Short:        "Batch log threat detection and correlation",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path")
	root.PersistentFlags().BoolVar(&useRedis, "redis", false, "Also drain raw log lines from the configured Redis list")

	root.AddCommand(newScanCmd(), newAnalyzeCmd(), newRCACmd(), newReportCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan logs for basic threats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			_, alerts, err := loadAndDetect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if len(alerts) == 0 {
				successColor.Println("No threats detected. System clean.")
				return nil
			}

			headerColor.Printf("Detected Threats (%d)\n", len(alerts))
			printAlertTable(alerts, false)
			return nil
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Deep analysis with correlation enrichment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			_, enriched, err := loadAndEnrich(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if len(enriched) == 0 {
				successColor.Println("No threats detected.")
				return nil
			}

			headerColor.Println("Enhanced Threat Analysis")
			printAlertTable(enriched, true)
			return nil
		},
	}
}

func newRCACmd() *cobra.Command {
	var alertID string
	cmd := &cobra.Command{
		Use:   "rca",
		Short: "Perform root cause analysis on a specific alert",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			events, enriched, err := loadAndEnrich(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			builder := narrative.NewBuilder(narrative.Config{
				Lookback:  cfg.SOCTrace.RCA.Lookback,
				Lookahead: cfg.SOCTrace.RCA.Lookahead,
			})
			text, err := builder.Build(alertID, enriched, events)
			if err != nil {
				errorColor.Printf("Root cause analysis failed: %v\n", err)
				return nil
			}

			headerColor.Printf("Root Cause Analysis for %s\n", alertID)
			fmt.Println(text)
			return nil
		},
	}
	cmd.Flags().StringVar(&alertID, "id", "", "Alert ID to analyze")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(fmt.Sprintf("failed to mark id as required: %v", err))
	}
	return cmd
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Generate a full incident report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			events, enriched, err := loadAndEnrich(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			builder := narrative.NewBuilder(narrative.Config{
				Lookback:  cfg.SOCTrace.RCA.Lookback,
				Lookahead: cfg.SOCTrace.RCA.Lookahead,
			})

			// Narratives for everything High or above; that is the reporting
			// flow's selection policy, not the builder's.
			var narratives []string
			for _, alert := range enriched {
				if alert.Severity < models.SeverityHigh {
					continue
				}
				text, err := builder.Build(alert.ID, enriched, events)
				if err != nil {
					logger.Warnf("skipping narrative for %s: %v", alert.ID, err)
					continue
				}
				narratives = append(narratives, text)
			}

			writer := report.NewGenerator(cfg.SOCTrace.Report.Dir)
			path, err := writer.Save(enriched, narratives)
			if err != nil {
				return fmt.Errorf("generate report: %w", err)
			}
			successColor.Printf("Report generated successfully at: %s\n", path)

			if err := exportAlerts(cfg, enriched); err != nil {
				return err
			}
			return nil
		},
	}
}

func setup() (*config.Config, error) {
	fmt.Print(banner)

	cfg, err := loadConfigOrDefaults(configFile)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(
		cfg.SOCTrace.Logging.Enabled,
		cfg.SOCTrace.Logging.Level,
		cfg.SOCTrace.Logging.File,
		cfg.SOCTrace.Logging.Console,
	); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if cfg.SOCTrace.Metrics.Enabled {
		metrics.Serve(cfg.SOCTrace.Metrics.Listen)
	}

	return cfg, nil
}

// loadConfigOrDefaults resolves and loads the config file. A missing file is
// tolerated only when the path was probed rather than given explicitly; read
// and parse failures always surface.
func loadConfigOrDefaults(configArg string) (*config.Config, error) {
	path := findConfigFile(configArg)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		if configArg != "" || !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		cfg = &config.Config{}
	}
	applyDefaults(cfg)
	return cfg, nil
}

func findConfigFile(configArg string) string {
	if configArg != "" {
		return configArg
	}

	if _, err := os.Stat("soctrace.yml"); err == nil {
		return "soctrace.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		path := filepath.Join(filepath.Dir(exePath), "soctrace.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "soctrace.yml"
}

func applyDefaults(cfg *config.Config) {
	st := &cfg.SOCTrace

	if st.Logs.Dir == "" {
		st.Logs.Dir = "logs"
	}
	if st.Input.Redis.Addr == "" {
		st.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if st.Input.Redis.Key == "" {
		st.Input.Redis.Key = "soctrace_logs"
	}
	if st.Detection.BruteForce.Window <= 0 {
		st.Detection.BruteForce.Window = 5 * time.Minute
	}
	if st.Detection.BruteForce.Threshold <= 0 {
		st.Detection.BruteForce.Threshold = 3
	}
	if st.Correlation.TakeoverWindow <= 0 {
		st.Correlation.TakeoverWindow = 10 * time.Minute
	}
	if st.RCA.Lookback <= 0 {
		st.RCA.Lookback = time.Hour
	}
	if st.RCA.Lookahead <= 0 {
		st.RCA.Lookahead = time.Hour
	}
	if st.Report.Dir == "" {
		st.Report.Dir = "output"
	}
	if st.Metrics.Listen == "" {
		st.Metrics.Listen = ":9102"
	}
	if st.Logging.Level == "" {
		st.Logging.Level = "info"
	}
}

func loadEvents(ctx context.Context, cfg *config.Config) ([]models.Event, error) {
	loader := ingest.NewLoader(cfg.SOCTrace.Logs.Dir)
	events, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("ingest logs: %w", err)
	}

	if useRedis {
		consumer, err := inputredis.NewConsumer(inputredis.Config{
			Addr:     cfg.SOCTrace.Input.Redis.Addr,
			Password: cfg.SOCTrace.Input.Redis.Password,
			DB:       cfg.SOCTrace.Input.Redis.DB,
			Key:      cfg.SOCTrace.Input.Redis.Key,
			MaxDrain: cfg.SOCTrace.Input.Redis.MaxDrain,
		})
		if err != nil {
			return nil, fmt.Errorf("redis source: %w", err)
		}
		defer consumer.Close()

		drained, err := consumer.DrainEvents(ctx)
		if err != nil {
			return nil, fmt.Errorf("drain redis events: %w", err)
		}
		events = append(events, drained...)
		ingest.SortEvents(events)
	}

	return events, nil
}

func loadAndDetect(ctx context.Context, cfg *config.Config) ([]models.Event, []models.Alert, error) {
	events, err := loadEvents(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if len(events) == 0 {
		errorColor.Println("No logs found to analyze!")
		return nil, nil, nil
	}
	logger.Infof("ingested %d events", len(events))

	detectCfg := detect.Config{
		BruteWindow:    cfg.SOCTrace.Detection.BruteForce.Window,
		BruteThreshold: cfg.SOCTrace.Detection.BruteForce.Threshold,
	}
	if cfg.SOCTrace.Detection.Sigma.Enabled {
		engine, stats, err := detect.NewSigmaEngine(cfg.SOCTrace.Detection.Sigma.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("load sigma rules: %w", err)
		}
		logger.Infof("sigma rules loaded=%d skipped_complex=%d skipped_invalid=%d",
			stats.Loaded, stats.SkippedComplex, stats.SkippedInvalid)
		detectCfg.Sigma = engine
	}

	alerts := detect.NewDetector(detectCfg).Run(events)
	logger.Infof("detection produced %d alerts", len(alerts))
	return events, alerts, nil
}

func loadAndEnrich(ctx context.Context, cfg *config.Config) ([]models.Event, []models.Alert, error) {
	events, alerts, err := loadAndDetect(ctx, cfg)
	if err != nil || len(alerts) == 0 {
		return events, nil, err
	}

	engine := correlate.NewEngine(correlate.Config{
		TakeoverWindow: cfg.SOCTrace.Correlation.TakeoverWindow,
	})
	return events, engine.Enrich(alerts, events), nil
}

func exportAlerts(cfg *config.Config, alerts []models.Alert) error {
	if path := cfg.SOCTrace.Report.Alerts.Path; path != "" {
		writer, err := alertjson.NewWriter(path)
		if err != nil {
			return fmt.Errorf("alert export: %w", err)
		}
		defer writer.Close()
		if err := writer.WriteAlerts(alerts); err != nil {
			return fmt.Errorf("alert export: %w", err)
		}
	}

	if cfg.SOCTrace.Report.Webhook.URL != "" {
		writer, err := alerthttp.NewWriter(alerthttp.Config{
			URL:     cfg.SOCTrace.Report.Webhook.URL,
			Timeout: cfg.SOCTrace.Report.Webhook.Timeout,
			Headers: cfg.SOCTrace.Report.Webhook.Headers,
		})
		if err != nil {
			return fmt.Errorf("alert webhook: %w", err)
		}
		if err := writer.WriteAlerts(alerts); err != nil {
			return fmt.Errorf("alert webhook: %w", err)
		}
	}

	return nil
}

func printAlertTable(alerts []models.Alert, withAnalysis bool) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	if withAnalysis {
		fmt.Fprintln(w, "ID\tTIMESTAMP\tSEVERITY\tRULE\tSOURCE IP\tAI INSIGHT")
	} else {
		fmt.Fprintln(w, "ID\tTIMESTAMP\tSEVERITY\tRULE\tSOURCE IP")
	}
	for _, alert := range alerts {
		if withAnalysis {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				alert.ID,
				alert.Timestamp.UTC().Format("2006-01-02 15:04:05"),
				severityLabel(alert.Severity),
				alert.Rule,
				alert.SourceIP,
				alert.Analysis,
			)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				alert.ID,
				alert.Timestamp.UTC().Format("2006-01-02 15:04:05"),
				severityLabel(alert.Severity),
				alert.Rule,
				alert.SourceIP,
			)
		}
	}
	w.Flush()
}

func severityLabel(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint(s.String())
	case models.SeverityHigh:
		return color.New(color.FgRed).Sprint(s.String())
	case models.SeverityMedium:
		return color.New(color.FgYellow).Sprint(s.String())
	default:
		return color.New(color.FgCyan).Sprint(s.String())
	}
}
