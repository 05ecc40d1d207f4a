package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rpattn/incidentetl/internal/archive"
	"github.com/rpattn/incidentetl/internal/config"
	"github.com/rpattn/incidentetl/internal/db"
	"github.com/rpattn/incidentetl/internal/ingestion"
	"github.com/rpattn/incidentetl/internal/repository"
)

var loadFlags struct {
	in      string
	dryRun  bool
	profile string
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Run an incident export through the full pipeline into the database",
	RunE:  runLoad,
}

func init() {
	f := loadCmd.Flags()
	f.StringVar(&loadFlags.in, "in", "", "source .csv or .xlsx file (required)")
	f.BoolVar(&loadFlags.dryRun, "dry-run", false, "validate without inserting")
	f.StringVar(&loadFlags.profile, "profile", "", "header profile: auto, current or legacy")

	_ = loadCmd.MarkFlagRequired("in")
}

func runLoad(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	conn, err := db.NewConnection(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer conn.Close()

	store, err := archive.Open(cmd.Context(), cfg.Archive)
	if err != nil {
		return err
	}

	loader := ingestion.NewLoader(conn.Pool, cfg.Ingestion.BatchTimeout)
	logs := repository.NewIngestionLogRepository(conn.Pool)
	service, req, err := newPipeline(cfg, loader, logs, loadFlags.in, loadFlags.profile, ingestion.WithArchive(store))
	if err != nil {
		return err
	}
	req.DryRun = loadFlags.dryRun

	summary, ingestErr := service.Ingest(cmd.Context(), req)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return err
	}
	return ingestErr
}

// newPipeline builds a service from config and reads the input file.
func newPipeline(cfg config.Config, loader ingestion.BatchLoader, logs repository.IngestionLogRepository, path, profile string, options ...ingestion.Option) (*ingestion.Service, ingestion.Request, error) {
	opts, err := ingestion.OptionsFromConfig(cfg.Ingestion)
	if err != nil {
		return nil, ingestion.Request{}, err
	}
	req := ingestion.Request{FileName: filepath.Base(path)}
	if profile != "" {
		if req.Profile, err = ingestion.ParseProfile(profile); err != nil {
			return nil, ingestion.Request{}, err
		}
	}
	req.Data, err = os.ReadFile(path)
	if err != nil {
		return nil, ingestion.Request{}, fmt.Errorf("read %s: %w", path, err)
	}
	return ingestion.NewService(loader, logs, opts, options...), req, nil
}
