package ingestion

import (
	"fmt"
	"time"

	"github.com/rpattn/incidentetl/internal/config"
)

// OptionsFromConfig converts the ingestion config section.
func OptionsFromConfig(cfg config.IngestionConfig) (Options, error) {
	profile, err := ParseProfile(cfg.Profile)
	if err != nil {
		return Options{}, err
	}
	policy, err := ParseConflictPolicy(cfg.OnConflict)
	if err != nil {
		return Options{}, err
	}
	loc := time.UTC
	if cfg.Location != "" {
		loc, err = time.LoadLocation(cfg.Location)
		if err != nil {
			return Options{}, fmt.Errorf("invalid location %q: %w", cfg.Location, err)
		}
	}
	return Options{
		Profile:    profile,
		OnConflict: policy,
		Layouts:    cfg.DateLayouts,
		Location:   loc,
		Workers:    cfg.Workers,
	}, nil
}
