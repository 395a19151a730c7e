package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_extension_uuid_ossp",
		SQL:  `CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	},
	{
		Name: "create_table_cards",
		SQL: `CREATE TABLE IF NOT EXISTS cards (
  id               UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  card_number      TEXT        NOT NULL UNIQUE,
  display_name     TEXT        NOT NULL,
  status           TEXT        NOT NULL,
  status_label     TEXT        NOT NULL,
  council_name     TEXT        NOT NULL DEFAULT '',
  affiliation_type TEXT        NOT NULL DEFAULT '',
  qr_payload       TEXT        NOT NULL DEFAULT '',
  date_issued      TIMESTAMPTZ,
  date_expires     TIMESTAMPTZ,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_card_deliveries",
		SQL: `CREATE TABLE IF NOT EXISTS card_deliveries (
  id               UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  card_id          UUID        NOT NULL REFERENCES cards (id),
  delivery_channel TEXT        NOT NULL,
  recipient_email  TEXT        NOT NULL,
  recipient_name   TEXT        NOT NULL,
  file_format      TEXT        NOT NULL DEFAULT 'pdf',
  status           TEXT        NOT NULL DEFAULT 'processing',
  failure_reason   TEXT        NOT NULL DEFAULT '',
  initiated_by     TEXT,
  email_subject    TEXT        NOT NULL DEFAULT '',
  email_message    TEXT        NOT NULL DEFAULT '',
  access_token     TEXT        UNIQUE,
  token_expires_at TIMESTAMPTZ,
  max_downloads    INT         NOT NULL DEFAULT 0 CHECK (max_downloads >= 0),
  download_count   INT         NOT NULL DEFAULT 0 CHECK (download_count >= 0),
  delivery_notes   TEXT        NOT NULL DEFAULT '',
  completed_at     TIMESTAMPTZ,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  CHECK (access_token IS NULL OR (token_expires_at IS NOT NULL AND max_downloads > 0))
);`,
	},
	{
		Name: "create_index_card_deliveries_card_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_card_deliveries_card_id ON card_deliveries (card_id);`,
	},
	{
		Name: "create_index_card_deliveries_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_card_deliveries_status ON card_deliveries (status);`,
	},
	{
		Name: "create_index_card_deliveries_recipient_email",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_card_deliveries_recipient_email ON card_deliveries (recipient_email);`,
	},
	{
		Name: "create_index_card_deliveries_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_card_deliveries_created_at ON card_deliveries (created_at);`,
	},
}

// EnsureMigrated checks if the 'card_deliveries' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, loc *time.Location, dbHost string) error {
	start := time.Now()

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_check",
		"status":    "starting",
		"db_host":   dbHost,
	})

	var exists bool
	query := "SELECT to_regclass('public.card_deliveries') IS NOT NULL"
	err := db.QueryRowContext(ctx, query).Scan(&exists)
	if err != nil {
		logJSON(loc, map[string]any{
			"component":     "database",
			"event":         "db_migration_failed",
			"status":        "error",
			"error_message": fmt.Sprintf("failed to check sentinel table: %v", err),
			"db_host":       dbHost,
			"duration_ms":   time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		logJSON(loc, map[string]any{
			"component":   "database",
			"event":       "db_migration_skip",
			"status":      "success",
			"msg":         "schema already exists, skipping migration",
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_start",
		"status":    "in_progress",
		"db_host":   dbHost,
	})

	for _, step := range steps {
		stepStart := time.Now()
		_, err := db.ExecContext(ctx, step.SQL)
		if err != nil {
			logJSON(loc, map[string]any{
				"component":        "database",
				"event":            "db_migration_failed",
				"status":           "error",
				"migration_step":   step.Name,
				"error_message":    err.Error(),
				"db_host":          dbHost,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			})
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		logJSON(loc, map[string]any{
			"component":        "database",
			"event":            "db_migration_step",
			"status":           "success",
			"migration_step":   step.Name,
			"db_host":          dbHost,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		})
	}

	logJSON(loc, map[string]any{
		"component":   "database",
		"event":       "db_migration_success",
		"status":      "success",
		"db_host":     dbHost,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return nil
}

func logJSON(loc *time.Location, data map[string]any) {
	data["ts"] = time.Now().In(loc).Format(time.RFC3339Nano)
	if _, ok := data["level"]; !ok {
		if data["status"] == "error" {
			data["level"] = "error"
		} else {
			data["level"] = "info"
		}
	}

	b, err := json.Marshal(data)
	if err != nil {
		log.Printf("failed to marshal migration log: %v", err)
		return
	}
	log.SetFlags(0)
	log.Println(string(b))
}
