// Command bootstrap_admin creates the initial superadmin account. Every later
// staff account is provisioned through the invitation flow, so this only needs
// to run once against a fresh database.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/medibook/admin-api/internal/models"
	"github.com/medibook/admin-api/internal/repository"
	"github.com/medibook/admin-api/pkg/config"
	"github.com/medibook/admin-api/pkg/database"
)

func main() {
	var (
		email    string
		fullName string
		password string
	)

	flag.StringVar(&email, "email", "", "superadmin email")
	flag.StringVar(&fullName, "name", "Platform Admin", "superadmin full name")
	flag.StringVar(&password, "password", "", "superadmin password (min 8 chars)")
	flag.Parse()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		flag.Usage()
		os.Exit(2)
	}
	if len(password) < 8 {
		log.Fatal("password must be at least 8 characters")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := repository.NewUserRepository(db)
	if _, err := users.FindByEmail(ctx, email); err == nil {
		log.Fatalf("account %s already exists", email)
	} else if !errors.Is(err, sql.ErrNoRows) {
		log.Fatalf("failed to check existing account: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		Role:         models.RoleSuperAdmin,
		Active:       true,
	}
	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("failed to create account: %v", err)
	}

	fmt.Printf("created superadmin %s (%s)\n", user.Email, user.ID)
}
