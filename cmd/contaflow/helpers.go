package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/amplafin/contaflow/internal/advisor"
	"github.com/amplafin/contaflow/internal/closing"
	"github.com/amplafin/contaflow/internal/config"
	"github.com/amplafin/contaflow/internal/posting"
	"github.com/amplafin/contaflow/internal/storage"
)

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	// Get database path from config
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/contaflow/contaflow.db"
	}

	// Expand tilde and environment variables
	dbPath = config.ExpandPath(dbPath)

	// Initialize storage
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// loadClassification loads the versioned domain data, with built-in defaults
// when no override file is configured.
func loadClassification() (config.Classification, error) {
	return config.LoadClassification(viper.GetString("classification.file"))
}

// initWorkflow wires the full classification and closing stack.
func initWorkflow(ctx context.Context) (*closing.Workflow, *storage.SQLiteStorage, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := loadClassification()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	var adv advisor.Advisor = advisor.Disabled{}
	if endpoint := viper.GetString("advisor.endpoint"); endpoint != "" {
		adv = advisor.NewHTTPAdvisor(endpoint, viper.GetDuration("advisor.timeout"))
	}

	post := posting.NewService(store, cfg)
	return closing.NewWorkflow(store, post, adv, cfg), store, nil
}
