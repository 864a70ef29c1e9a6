// Command seed publishes workflow definitions from YAML files into the
// definition store.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cliff-rosen/adam-bot/internal/config"
	"github.com/cliff-rosen/adam-bot/internal/logging"
	"github.com/cliff-rosen/adam-bot/internal/repository"
	"github.com/cliff-rosen/adam-bot/internal/workflow"
	"github.com/cliff-rosen/adam-bot/pkg/models"
)

func main() {
	var dir string

	root := &cobra.Command{
		Use:   "seed",
		Short: "Publish workflow definitions from YAML files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), dir)
		},
	}
	root.Flags().StringVar(&dir, "dir", "./workflows", "directory of workflow definition YAML files")

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
}

func run(ctx context.Context, dir string) error {
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	registry := workflow.NewRegistry(store)

	// Skip names that are already published so re-running the seed does
	// not pile up versions.
	existing, err := store.ListDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("list existing definitions: %w", err)
	}
	existingNames := make(map[string]bool)
	for _, def := range existing {
		existingNames[def.Name] = true
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.y*ml"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		logger.Warn("No definition files found", "dir", dir)
		return nil
	}

	for _, path := range matches {
		def, err := loadDefinition(path)
		if err != nil {
			logger.Error("Skipping unreadable definition", "path", path, "error", err)
			continue
		}
		if existingNames[def.Name] {
			logger.Info("Skipping existing workflow", "name", def.Name)
			continue
		}
		def.CreatedBy = "seed-script"

		if _, err := registry.Register(ctx, def); err != nil {
			logger.Error("Failed to publish workflow", "name", def.Name, "error", err)
			continue
		}
		logger.Info("Seeded workflow", "name", def.Name, "id", def.ID, "version", def.Version)
	}

	logger.Info("Seeding complete")
	return nil
}

func loadDefinition(path string) (*models.GraphDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def models.GraphDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &def, nil
}
