// Command seed loads hospitals and insurance plans from a YAML fixtures file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/isdelr/telemed-portal/internal/config"
	"github.com/isdelr/telemed-portal/internal/database"
	"github.com/isdelr/telemed-portal/internal/logger"
	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/isdelr/telemed-portal/internal/services"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"
)

// fixtures is the layout of the seed file.
type fixtures struct {
	Hospitals      []models.Hospital      `yaml:"hospitals"`
	InsurancePlans []models.InsurancePlan `yaml:"insurance_plans"`
}

func loadFixtures(path string) (fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fixtures{}, err
	}
	var f fixtures
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return fixtures{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

func main() {
	path := flag.String("file", "seed.yaml", "YAML file with hospitals and insurance_plans")
	flag.Parse()

	logger.Init("info", true)

	f, err := loadFixtures(*path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read fixtures")
	}

	driver, url, err := config.LoadDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	db, err := database.New(driver, url)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	directory := services.NewDirectoryService(db, services.NewEventService(db))
	if err := directory.Import(ctx, f.Hospitals, f.InsurancePlans); err != nil {
		log.Fatal().Err(err).Msg("Failed to import fixtures")
	}
	log.Info().Int("hospitals", len(f.Hospitals)).Int("insurance_plans", len(f.InsurancePlans)).Msg("Directory seeded")
}
