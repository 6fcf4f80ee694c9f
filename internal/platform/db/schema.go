package db

import (
	"context"
	_ "embed"
	"fmt"
)

// Schema is the DDL for the users and audit tables.
//
//go:embed schema.sql
var Schema string

// ApplySchema creates any missing tables and indexes.
func ApplySchema(ctx context.Context, conn DBTX) error {
	if _, err := conn.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("platform/db: apply schema: %w", err)
	}
	return nil
}
