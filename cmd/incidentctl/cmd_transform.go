package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rpattn/incidentetl/internal/export"
)

var transformFlags struct {
	in      string
	out     string
	format  string
	profile string
}

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Write a cleaned copy of an incident export",
	RunE:  runTransform,
}

func init() {
	f := transformCmd.Flags()
	f.StringVar(&transformFlags.in, "in", "", "source .csv or .xlsx file (required)")
	f.StringVar(&transformFlags.out, "out", "", "destination file (required)")
	f.StringVar(&transformFlags.format, "format", "csv", "output format: csv or xlsx")
	f.StringVar(&transformFlags.profile, "profile", "", "header profile: auto, current or legacy")

	_ = transformCmd.MarkFlagRequired("in")
	_ = transformCmd.MarkFlagRequired("out")
}

func runTransform(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(transformFlags.format)
	if err != nil {
		return err
	}
	service, req, err := newPipeline(cfg, nil, nil, transformFlags.in, transformFlags.profile)
	if err != nil {
		return err
	}

	batch, err := service.Prepare(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("prepare %s: %w", transformFlags.in, err)
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, batch.Records()); err != nil {
		return err
	}
	if err := os.WriteFile(transformFlags.out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", transformFlags.out, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Profile:   %s (%s)\n", batch.Mapping.Profile, batch.Mapping.Version)
	fmt.Fprintf(out, "Rows:      %d\n", batch.TotalRows)
	fmt.Fprintf(out, "Written:   %d -> %s\n", len(batch.Accepted), transformFlags.out)
	fmt.Fprintf(out, "Rejected:  %d\n", len(batch.Rejected))
	for _, r := range batch.Rejected {
		fmt.Fprintf(out, "  row %d: %s\n", r.Row, r.Reason)
	}
	if len(batch.Warnings) > 0 {
		fmt.Fprintf(out, "Warnings:  %d\n", len(batch.Warnings))
		for _, w := range batch.Warnings {
			if w.Row != nil {
				fmt.Fprintf(out, "  row %d: %s\n", *w.Row, w.Message)
				continue
			}
			fmt.Fprintf(out, "  %s\n", w.Message)
		}
	}
	return nil
}
