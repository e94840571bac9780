// Command migrate applies the archive schema to a Postgres database. It is
// idempotent; every statement guards with IF NOT EXISTS.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            BIGSERIAL PRIMARY KEY,
    user_id       TEXT        NOT NULL UNIQUE,
    full_name     TEXT        NOT NULL,
    email         TEXT,
    password_hash TEXT,
    is_active     BOOLEAN     NOT NULL DEFAULT FALSE,
    is_admin      BOOLEAN     NOT NULL DEFAULT FALSE,
    last_login    TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    activated_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS otp_codes (
    id         BIGSERIAL PRIMARY KEY,
    user_id    BIGINT      NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    email      TEXT        NOT NULL,
    code       TEXT        NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    is_used    BOOLEAN     NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_otp_codes_lookup ON otp_codes (user_id, email, code) WHERE NOT is_used;

CREATE TABLE IF NOT EXISTS sessions (
    id            BIGSERIAL PRIMARY KEY,
    user_id       BIGINT      NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    session_token TEXT        NOT NULL UNIQUE,
    expires_at    TIMESTAMPTZ NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS roles (
    id          BIGSERIAL PRIMARY KEY,
    name        TEXT        NOT NULL UNIQUE,
    description TEXT        NOT NULL DEFAULT '',
    permissions JSONB       NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_roles (
    user_id     BIGINT      NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    role_id     BIGINT      NOT NULL REFERENCES roles (id) ON DELETE CASCADE,
    assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, role_id)
);

CREATE TABLE IF NOT EXISTS files (
    id               TEXT        PRIMARY KEY,
    file_name        TEXT        NOT NULL,
    file_size        BIGINT      NOT NULL DEFAULT 0,
    file_type        TEXT        NOT NULL,
    mime_type        TEXT        NOT NULL,
    telegram_file_id TEXT        NOT NULL,
    file_url         TEXT        NOT NULL DEFAULT '',
    message_id       BIGINT      NOT NULL DEFAULT 0,
    link_valid       BOOLEAN     NOT NULL DEFAULT FALSE,
    uploaded_by      BIGINT      REFERENCES users (id) ON DELETE SET NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    checked_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_files_type ON files (file_type);
CREATE INDEX IF NOT EXISTS idx_files_checked_at ON files (checked_at ASC NULLS FIRST);
`

func main() {
	var (
		dsn     string
		timeout time.Duration
	)

	flag.StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "Postgres connection string")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Connection timeout")
	flag.Parse()

	if dsn == "" {
		log.Fatal("no DSN given; pass -dsn or set DATABASE_URL")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close()

	db.SetConnMaxLifetime(timeout)

	start := time.Now()
	if _, err := db.Exec(schema); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}
	fmt.Printf("schema applied in %s\n", time.Since(start).Round(time.Millisecond))
}
