package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ApexAgent/app/models"
	"github.com/ManuelReschke/ApexAgent/app/repository"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/database"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/env"
)

// apikey issues an API key for the user with the given email, creating the
// user first when -name is set. The raw key is printed once and never stored.
func main() {
	email := flag.String("email", "", "email of the key owner")
	name := flag.String("name", "", "display name; creates the user when it does not exist")
	rotate := flag.Bool("rotate", false, "replace an existing key")
	flag.Parse()

	if strings.TrimSpace(*email) == "" {
		flag.Usage()
		os.Exit(2)
	}

	env.SetupEnvFile()
	database.SetupDatabase()
	users := repository.NewUserRepository(database.GetDB())

	key, err := issue(context.Background(), users, strings.TrimSpace(*email), strings.TrimSpace(*name), *rotate)
	if err != nil {
		log.Fatalf("[APIKey] %v", err)
	}
	fmt.Println(key)
}

func issue(ctx context.Context, users repository.UserRepository, email, name string, rotate bool) (string, error) {
	user, err := users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if name == "" {
			return "", fmt.Errorf("no user with email %s; pass -name to create one", email)
		}
		user = &models.User{Name: name, Email: email, Status: models.STATUS_ACTIVE}
		if err := user.Validate(); err != nil {
			return "", fmt.Errorf("invalid user: %w", err)
		}
		if err := users.Create(ctx, user); err != nil {
			return "", fmt.Errorf("create user: %w", err)
		}
		log.Infof("[APIKey] Created user %s", user.ID)
	case err != nil:
		return "", fmt.Errorf("look up user: %w", err)
	}

	if !user.IsActive() {
		return "", fmt.Errorf("user %s is %s", user.ID, user.Status)
	}
	if user.HasActiveAPIKey() && !rotate {
		return "", fmt.Errorf("user %s already has key %s...; pass -rotate to replace it", user.ID, user.APIKeyPrefix)
	}

	key, err := user.IssueAPIKey()
	if err != nil {
		return "", err
	}
	if err := users.SaveAPIKey(ctx, user); err != nil {
		return "", fmt.Errorf("save api key: %w", err)
	}
	log.Infof("[APIKey] Issued key %s... for user %s", user.APIKeyPrefix, user.ID)
	return key, nil
}
