package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/database"
	"github.com/stemsi/examflow/internal/logger"
	"github.com/stemsi/examflow/internal/model"
	"github.com/stemsi/examflow/internal/repository"
	"github.com/stemsi/examflow/internal/service"
	"github.com/stemsi/examflow/internal/validator"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout: the authoring teacher plus the test itself.
type seedFile struct {
	Teacher string                  `yaml:"teacher"`
	Test    model.CreateTestRequest `yaml:"test"`
}

func main() {
	var path string
	flag.StringVar(&path, "file", "seed/math123.yaml", "YAML test definition")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	validator.Setup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	seed, err := load(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Failed to load seed file")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	testService := service.NewTestService(repository.NewTestRepository(pool), nil, 0, log)

	teacher, err := userRepo.GetByUsername(ctx, seed.Teacher)
	if err != nil {
		log.Fatal().Err(err).Str("teacher", seed.Teacher).Msg("Teacher account not found; create it with create-user")
	}
	if teacher.Role != model.RoleTeacher {
		log.Fatal().Str("teacher", seed.Teacher).Str("role", string(teacher.Role)).Msg("Account is not a teacher")
	}

	fmt.Printf("=== Seeding test %q (%d questions) ===\n", seed.Test.Title, len(seed.Test.Questions))

	t, err := testService.Create(ctx, teacher.ID, &seed.Test)
	if err != nil {
		if errors.Is(err, service.ErrDuplicatePasscode) {
			fmt.Printf("Error: passcode %q is already in use\n", seed.Test.Passcode)
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("Failed to create test")
	}

	fmt.Printf("\nSeed completed! Test ID %d, passcode %s, open %s to %s\n",
		t.ID, t.Passcode, t.TimeOpen.Format(time.RFC3339), t.TimeClose.Format(time.RFC3339))
}

func load(path string) (*seedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if seed.Teacher == "" {
		return nil, errors.New("teacher is required")
	}

	if fields := validator.Struct(&seed.Test); fields != nil {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		msg := "invalid test definition:"
		for _, k := range keys {
			msg += fmt.Sprintf(" %s: %s;", k, fields[k])
		}
		return nil, errors.New(msg)
	}
	return &seed, nil
}
