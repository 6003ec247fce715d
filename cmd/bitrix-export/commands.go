package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MateusSouzaG/bitrix-exporter/internal/batch"
	"github.com/MateusSouzaG/bitrix-exporter/internal/bitrix"
	"github.com/MateusSouzaG/bitrix-exporter/internal/config"
	"github.com/MateusSouzaG/bitrix-exporter/internal/export"
	"github.com/MateusSouzaG/bitrix-exporter/internal/notify"
	"github.com/MateusSouzaG/bitrix-exporter/internal/roster"
	"github.com/MateusSouzaG/bitrix-exporter/internal/runstore"
	"github.com/MateusSouzaG/bitrix-exporter/web/api"
)

var (
	exportDept   string
	exportUser   string
	exportPreset string
	exportFrom   string
	exportTo     string
	exportStatus string
	exportOutput string
	servePort    int
	jobsPath     string
	runsLimit    int
)

func init() {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Run one export and write the rows as JSON",
		RunE:  runExport,
	}
	exportCmd.Flags().StringVar(&exportDept, "department", "", "filter collaborators by department")
	exportCmd.Flags().StringVar(&exportUser, "user", "", "filter collaborators by name substring")
	exportCmd.Flags().StringVar(&exportPreset, "preset", "", "named date window, e.g. last_7_days")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "activity window start (ISO 8601)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "activity window end (ISO 8601)")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "task status filter")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run recurring exports from a cron job file",
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().StringVar(&jobsPath, "jobs", "", "schedule TOML file (default <config dir>/schedule.toml)")
	rootCmd.AddCommand(scheduleCmd)

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent export runs",
		RunE:  runRuns,
	}
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(runsCmd)

	rosterCmd := &cobra.Command{
		Use:   "roster",
		Short: "Inspect the collaborator roster",
	}
	rosterCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List collaborators",
		RunE:  runRosterList,
	})
	rosterCmd.AddCommand(&cobra.Command{
		Use:   "departments",
		Short: "List departments",
		RunE:  runRosterDepartments,
	})
	rootCmd.AddCommand(rosterCmd)

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "List the named date windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range export.Presets() {
				fmt.Println(p)
			}
			return nil
		},
	}
	rootCmd.AddCommand(presetsCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// buildExporter assembles the pipeline from configuration.
func buildExporter(cfg *config.Config) (*export.Exporter, *roster.Roster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	client, err := bitrix.NewClient(cfg.Bitrix.WebhookBase,
		bitrix.WithBatchSize(cfg.Bitrix.BatchSize),
		bitrix.WithTimeout(time.Duration(cfg.Bitrix.RequestTimeoutSeconds)*time.Second),
		bitrix.WithRetryPolicy(bitrix.RetryPolicy{
			MaxAttempts: cfg.Bitrix.MaxRetries,
			BaseDelay:   time.Duration(cfg.Bitrix.RetryBackoffSeconds) * time.Second,
		}),
	)
	if err != nil {
		return nil, nil, err
	}

	people, err := roster.Load(cfg.Roster.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading roster: %w", err)
	}

	exporter := &export.Exporter{
		API:                   client,
		Roster:                people,
		PageSize:              cfg.Bitrix.PageSize,
		IndividualTimeEntries: cfg.Bitrix.IndividualTimeEntries,
		Timezone:              cfg.Bitrix.DefaultTimezone,
	}
	return exporter, people, nil
}

func openStore(cfg *config.Config) (*runstore.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0o755); err != nil {
		return nil, err
	}
	return runstore.New(cfg.General.DatabasePath)
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	if cfg.Notifications.SlackWebhook == "" {
		return notify.NoopNotifier{}
	}
	return notify.NewSlackNotifier(cfg.Notifications.SlackWebhook)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	exporter, _, err := buildExporter(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	req := export.Request{
		Department:   exportDept,
		Name:         exportUser,
		Preset:       exportPreset,
		ActivityFrom: exportFrom,
		ActivityTo:   exportTo,
		Status:       exportStatus,
	}

	result, err := exporter.Run(context.Background(), req)
	if err != nil {
		return err
	}

	if err := store.StartRun(result.RunID, req, result.StartedAt); err == nil {
		if err := store.FinishRun(result); err != nil {
			fmt.Fprintf(os.Stderr, "warning: recording run: %v\n", err)
		}
	}

	out := os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Rows); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "run %s: %d row(s), %d task(s) discovered, %d enriched, %d skipped\n",
		result.RunID, len(result.Rows), result.Discovered, result.Enriched, result.Skipped)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	exporter, people, err := buildExporter(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	watcher, err := roster.Watch(people)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: roster hot reload disabled: %v\n", err)
	} else {
		defer watcher.Close()
	}

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)

	server := api.NewServer(store, exporter, people, addr)
	exporter.Progress = server.Progress

	fmt.Printf("Listening on http://%s\n", addr)
	return server.Start()
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := jobsPath
	if path == "" {
		path = filepath.Join(filepath.Dir(config.DefaultConfigPath()), "schedule.toml")
	}

	schedCfg, err := batch.LoadScheduleConfig(path)
	if err != nil {
		return err
	}
	if len(schedCfg.Jobs) == 0 {
		return fmt.Errorf("no jobs configured in %s", path)
	}

	exporter, _, err := buildExporter(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	notifier := buildNotifier(cfg)

	sched, err := batch.NewScheduler(schedCfg.Jobs)
	if err != nil {
		return err
	}

	fmt.Printf("Scheduling %d job(s) from %s\n", len(schedCfg.Jobs), path)
	sched.Start(func(job batch.JobConfig) error {
		result, err := exporter.Run(context.Background(), job.Request())
		if err != nil {
			if job.NotifyOnComplete {
				_ = notifier.Send(notify.Notification{
					Title:   fmt.Sprintf("Export %q failed", job.Name),
					Message: err.Error(),
					Type:    notify.NotifyError,
				})
			}
			return err
		}

		if serr := store.StartRun(result.RunID, job.Request(), result.StartedAt); serr == nil {
			_ = store.FinishRun(result)
		}

		if job.NotifyOnComplete {
			_ = notifier.Send(notify.Notification{
				Title: fmt.Sprintf("Export %q complete", job.Name),
				Message: fmt.Sprintf("%d row(s) from %d task(s)",
					len(result.Rows), result.Enriched),
				Type:  notify.NotifySuccess,
				RunID: result.RunID,
			})
		}
		return nil
	})
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(runsLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tDEPARTMENT\tPRESET\tROWS\tSTARTED")
	for _, run := range runs {
		dept := run.Department
		if dept == "" {
			dept = "-"
		}
		preset := run.Preset
		if preset == "" {
			preset = "-"
		}
		started := "-"
		if !run.StartedAt.IsZero() {
			started = run.StartedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			run.ID, run.State, dept, preset, run.RowCount, started)
	}
	w.Flush()
	return nil
}

func runRosterList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	people, err := roster.Load(cfg.Roster.Path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDEPARTMENT")
	for _, c := range people.All() {
		dept := c.Department
		if dept == "" {
			dept = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", c.ID, c.Name, dept)
	}
	w.Flush()
	return nil
}

func runRosterDepartments(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	people, err := roster.Load(cfg.Roster.Path)
	if err != nil {
		return err
	}

	for _, d := range people.Departments() {
		fmt.Println(d)
	}
	return nil
}
