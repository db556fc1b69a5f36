package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"signup-api/internal/domain"
	"signup-api/pkg/database"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbURL string
	var timeout time.Duration

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the signup-api document store schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dbURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string (defaults to $DATABASE_URL)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall command timeout")

	// withConn opens a connection for the duration of fn
	withConn := func(cmd *cobra.Command, fn func(ctx context.Context, conn *pgx.Conn) error) error {
		if dbURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is not set")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		conn, err := pgx.Connect(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer conn.Close(ctx)

		return fn(ctx, conn)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Create the documents table and its indexes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withConn(cmd, func(ctx context.Context, conn *pgx.Conn) error {
					if err := createTables(ctx, conn); err != nil {
						return fmt.Errorf("failed to create tables: %w", err)
					}
					cmd.Println("✅ Schema created successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "drop",
			Short: "Drop the documents table",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withConn(cmd, func(ctx context.Context, conn *pgx.Conn) error {
					if err := dropTables(ctx, conn); err != nil {
						return fmt.Errorf("failed to drop tables: %w", err)
					}
					cmd.Println("✅ All tables dropped successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Report how many profile records are stored",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withConn(cmd, func(ctx context.Context, conn *pgx.Conn) error {
					count, err := countProfiles(ctx, conn)
					if err != nil {
						return err
					}
					cmd.Printf("📊 %d profile records in %q\n", count, domain.ProfilesCollection)
					return nil
				})
			},
		},
	)

	return root
}

func createTables(ctx context.Context, conn *pgx.Conn) error {
	for _, query := range database.SchemaStatements {
		if _, err := conn.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `DROP TABLE IF EXISTS documents CASCADE`)
	return err
}

func countProfiles(ctx context.Context, conn *pgx.Conn) (int64, error) {
	var count int64
	err := conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = $1`,
		domain.ProfilesCollection,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return count, nil
}
