// Command createadmin creates the administrator account from the environment.
// Running it again is a no-op.
package main

import (
	"context"
	"os"
	"time"

	"github.com/isdelr/telemed-portal/internal/config"
	"github.com/isdelr/telemed-portal/internal/database"
	"github.com/isdelr/telemed-portal/internal/logger"
	"github.com/isdelr/telemed-portal/internal/services"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	logger.Init("info", true)

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

	input := services.RegisterInput{
		Username:  os.Getenv("ADMIN"),
		Email:     os.Getenv("MY_EMAIL"),
		FirstName: os.Getenv("FIRST_NAME"),
		LastName:  os.Getenv("LAST_NAME"),
		Password:  os.Getenv("LOGIN_PASSWORD"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, created, err := services.NewUserService(db, bcrypt.DefaultCost).EnsureAdmin(ctx, input)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create admin user")
	}
	if !created {
		log.Info().Str("username", input.Username).Msg("Admin user already exists")
		return
	}
	log.Info().Int64("id", user.ID).Str("username", user.Username).Msg("Admin user created")
}
