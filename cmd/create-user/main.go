package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/database"
	"github.com/stemsi/examflow/internal/logger"
	"github.com/stemsi/examflow/internal/model"
	"github.com/stemsi/examflow/internal/repository"
	"github.com/stemsi/examflow/internal/service"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Initialize Service ────────────────────────────────────────────
	// No Redis: account creation needs neither cache nor revocation.
	authService := service.NewAuthService(cfg, repository.NewUserRepository(pool), nil, log)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New User ===")

	fmt.Print("Enter Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)
	if len(username) < 3 {
		fmt.Println("Error: Username must be at least 3 characters")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println() // Newline after password input
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	fmt.Print("Enter Role (student/teacher, default student): ")
	roleStr, _ := reader.ReadString('\n')
	role := model.RoleStudent
	if r := strings.ToUpper(strings.TrimSpace(roleStr)); r != "" {
		role = model.Role(r)
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	user, err := authService.CreateUser(ctx, username, password, role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRole):
			fmt.Printf("Error: unknown role %q\n", role)
			return
		case errors.Is(err, repository.ErrDuplicateUsername):
			fmt.Printf("Error: username %q is taken\n", username)
			return
		}
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("\nSuccess! %s '%s' created with ID: %d\n", strings.ToLower(string(user.Role)), user.Username, user.ID)
}
