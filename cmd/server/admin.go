package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"commerce-sync-engine/internal/config"
	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/repository"
	"commerce-sync-engine/internal/service"
)

func newCredentialCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage connector and operator credentials",
	}
	cmd.AddCommand(newCredentialCreateCommand())
	return cmd
}

func newCredentialCreateCommand() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "create <client-id>",
		Short: "Register a client and print its API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if r != domain.RoleConnector && r != domain.RoleOperator {
				return fmt.Errorf("%w: %q", service.ErrInvalidRole, role)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			credentials := service.NewCredentialService(
				repository.NewCredentialRepository(client, cfg.Database.Name),
				cfg.JWT.Secret,
				cfg.JWT.Expiration,
			)
			cred, apiKey, err := credentials.Create(ctx, args[0], r)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "client_id: %s\nrole:      %s\napi_key:   %s\n", cred.ClientID, cred.Role, apiKey)
			fmt.Fprintln(cmd.ErrOrStderr(), "Store the API key now. It cannot be shown again.")
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", string(domain.RoleConnector), "credential role (connector|operator)")
	return cmd
}

func newDeadLettersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "Inspect events that exhausted their retries",
	}
	cmd.AddCommand(newDeadLettersListCommand())
	return cmd
}

func newDeadLettersListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print dead letters as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("invalid limit %d: must be positive", limit)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			items, err := repository.NewDeadLetterRepository(client, cfg.Database.Name).List(ctx, limit)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of dead letters to print")
	return cmd
}
