package main

import (
	"context"
	"fmt"
	"log"
	"os"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/spf13/cobra"

	"commerce-sync-engine/internal/config"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "commerce-sync",
		Short:         "Commerce sync engine",
		Long:          "Synchronizes catalog, customer, order and interaction data across commerce platforms.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newCredentialCommand())
	cmd.AddCommand(newDeadLettersCommand())

	return cmd
}

// openDatabase connects to CouchDB and creates the database on first use.
func openDatabase(ctx context.Context, cfg *config.Config) (*kivik.Client, error) {
	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}

	exists, err := client.DBExists(ctx, cfg.Database.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		if err := client.CreateDB(ctx, cfg.Database.Name); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		log.Printf("Created database: %s", cfg.Database.Name)
	}
	return client, nil
}
