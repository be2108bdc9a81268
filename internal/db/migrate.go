package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id uuid PRIMARY KEY,
		school_id uuid NOT NULL,
		campus_id uuid,
		section_id uuid,
		grade_id uuid,
		first_name text NOT NULL,
		last_name text NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS periods (
		id uuid PRIMARY KEY,
		school_id uuid NOT NULL,
		campus_id uuid,
		title text NOT NULL,
		sort_order integer NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_codes (
		id uuid PRIMARY KEY,
		school_id uuid NOT NULL,
		title text NOT NULL,
		short_code text NOT NULL,
		color text NOT NULL DEFAULT '',
		state_value double precision NOT NULL DEFAULT 0,
		sort_order integer NOT NULL DEFAULT 0,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id uuid PRIMARY KEY,
		school_id uuid NOT NULL,
		student_id uuid NOT NULL REFERENCES students (id),
		period_id uuid NOT NULL REFERENCES periods (id),
		day date NOT NULL,
		attendance_code_id uuid REFERENCES attendance_codes (id),
		admin_override boolean NOT NULL DEFAULT false,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		UNIQUE (student_id, period_id, day)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_days (
		school_id uuid NOT NULL,
		student_id uuid NOT NULL,
		day date NOT NULL,
		state_value double precision NOT NULL DEFAULT 1,
		comment text,
		updated_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (school_id, student_id, day)
	)`,
	`CREATE INDEX IF NOT EXISTS attendance_records_school_day_idx
		ON attendance_records (school_id, day)`,
	`CREATE INDEX IF NOT EXISTS attendance_codes_school_idx
		ON attendance_codes (school_id)`,
}

// Migrate applies the schema at startup. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
