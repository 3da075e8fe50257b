// Command atlas-schema bootstraps the database schema: installs the
// encode/decode_build_version stored functions and applies the table
// DDL, as a one-shot binary run once per environment before
// cmd/atlas-ingest starts.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/jimbomcb/wow-minimaps/obslog"
	"github.com/jimbomcb/wow-minimaps/sql"
	"github.com/jimbomcb/wow-minimaps/sql/schema"
)

func main() {
	var databaseURL string

	root := &cobra.Command{
		Use:   "atlas-schema",
		Short: "Applies the wow-minimaps database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return apply(cmd.Context(), databaseURL)
		},
	}
	root.Flags().StringVar(&databaseURL, "database-url", "", "postgres:// DSN to apply the schema to")
	_ = root.MarkFlagRequired("database-url")

	if err := root.ExecuteContext(context.Background()); err != nil {
		obslog.Errorf("applying schema: %s", err)
		os.Exit(1)
	}
}

func apply(ctx context.Context, databaseURL string) error {
	pool, err := sql.Open(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema.EncodeBuildVersionFunc); err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schema.DecodeBuildVersionFunc); err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schema.DDL); err != nil {
		return err
	}

	obslog.Infof("schema applied to %s", databaseURL)
	return nil
}
