package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aniketwaliyan/ga4-warehouse/internal/config"
	"github.com/aniketwaliyan/ga4-warehouse/internal/dataset"
	"github.com/aniketwaliyan/ga4-warehouse/internal/daterange"
	"github.com/aniketwaliyan/ga4-warehouse/internal/export"
	"github.com/aniketwaliyan/ga4-warehouse/internal/fetch"
	"github.com/aniketwaliyan/ga4-warehouse/internal/logging"
	"github.com/aniketwaliyan/ga4-warehouse/internal/syncer"
	"github.com/aniketwaliyan/ga4-warehouse/internal/warehouse"
	"github.com/aniketwaliyan/ga4-warehouse/pkg/env"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "ga4wh",
		Short: "GA4 warehouse sync",
		Long:  "Incrementally syncs GA4 report metrics into a local relational warehouse",
	}

	var syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Fetch missing days for every dataset and upsert them",
		Run:   runSync,
	}
	syncCmd.Flags().Bool("parallel", false, "Sync datasets concurrently")
	syncCmd.Flags().String("env-dir", ".", "Directory containing the .env file")

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show per-dataset watermarks",
		Run:   runStatus,
	}
	statusCmd.Flags().String("env-dir", ".", "Directory containing the .env file")

	var exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export fact tables to CSV",
		Run:   runExport,
	}
	exportCmd.Flags().String("env-dir", ".", "Directory containing the .env file")

	var generateCmd = &cobra.Command{
		Use:   "generate",
		Short: "Generate starter .env and datasets.yaml files",
		Run:   runGenerate,
	}
	generateCmd.Flags().String("dir", ".", "Directory to write the starter files to")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(generateCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func nowUTC() time.Time { return time.Now().UTC() }

// setup loads configuration, the dataset registry and the warehouse.
// Every command shares it.
func setup(cmd *cobra.Command) (*config.Config, []dataset.Dataset, *warehouse.DB, error) {
	envDir, _ := cmd.Flags().GetString("env-dir")

	raw, err := env.Load(envDir)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.FromEnv(raw, nowUTC())
	if err != nil {
		return nil, nil, nil, err
	}
	if parallel, _ := cmd.Flags().GetBool("parallel"); parallel {
		cfg.Parallel = true
	}

	datasets, err := dataset.Load(cfg.DatasetsFile)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := warehouse.Open(cfg.StoragePath)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, datasets, store, nil
}

func runSync(cmd *cobra.Command, args []string) {
	cfg, datasets, store, err := setup(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	logger := logging.New(cfg.LogFile)
	ctx := context.Background()

	if err := store.EnsureSchema(ctx, datasets); err != nil {
		logger.Printf("Error initializing schema: %v", err)
		os.Exit(1)
	}

	client, err := fetch.NewGA4Client(cfg.PropertyID, cfg.CredentialsPath)
	if err != nil {
		logger.Printf("Error creating GA4 client: %v", err)
		os.Exit(1)
	}
	retrier := fetch.NewRetrier(client, cfg.MaxRetryAttempts, cfg.BackoffBase)

	logger.Printf("Starting sync for property %s (%d datasets)", cfg.PropertyID, len(datasets))
	summary := syncer.New(cfg, datasets, retrier, store, logger).Run(ctx)

	// Export is a byproduct of successful syncs only.
	for _, res := range summary.Results {
		if res.Err != nil || res.UpToDate() {
			continue
		}
		for _, ds := range datasets {
			if ds.ID != res.Dataset {
				continue
			}
			path, err := export.Dataset(ctx, store, ds, cfg.ExportDir)
			if err != nil {
				logger.Printf("WARNING: export of %s failed: %v", ds.ID, err)
				continue
			}
			logger.Printf("Exported %s to %s", ds.ID, path)
		}
	}

	if !summary.OK() {
		if summary.Fatal != nil {
			logger.Printf("Sync aborted: %v", summary.Fatal)
		}
		for _, res := range summary.Failed() {
			logger.Printf("Sync failed for dataset %s: %v", res.Dataset, res.Err)
		}
		os.Exit(1)
	}
	logger.Printf("Sync completed successfully")
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, datasets, store, err := setup(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.EnsureSchema(ctx, datasets); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Warehouse: %s\n", cfg.StoragePath)
	for _, ds := range datasets {
		wm, ok, err := store.Watermark(ctx, ds.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading watermark for %s: %v\n", ds.ID, err)
			os.Exit(1)
		}
		count, err := store.FactCount(ctx, ds)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting rows for %s: %v\n", ds.ID, err)
			os.Exit(1)
		}
		if ok {
			fmt.Printf("  %-10s last synced %s (%d rows)\n", ds.ID, daterange.FormatDay(wm), count)
		} else {
			fmt.Printf("  %-10s never synced\n", ds.ID)
		}
	}
}

func runExport(cmd *cobra.Command, args []string) {
	cfg, datasets, store, err := setup(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	for _, ds := range datasets {
		path, err := export.Dataset(ctx, store, ds, cfg.ExportDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error exporting %s: %v\n", ds.ID, err)
			os.Exit(1)
		}
		fmt.Printf("Exported %s to %s\n", ds.ID, path)
	}
}
