package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aliuyar1234/pmdash/internal/auth"
	"github.com/aliuyar1234/pmdash/internal/db"
	"github.com/aliuyar1234/pmdash/internal/retention"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

const minPasswordLength = 8

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	_ = godotenv.Load()

	switch args[0] {
	case "migrate":
		return runMigrate(args[1:])
	case "purge-invitations":
		return runPurgeInvitations(args[1:])
	case "reset-password":
		return runResetPassword(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  pmdash admin migrate [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  pmdash admin purge-invitations [--days 30] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  pmdash admin reset-password --email user@example.com [--password <new>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "--db-dsn defaults to PM_DB_DSN. A generated password is printed when --password is omitted.")
}

// adminFlags returns a flag set with the shared --db-dsn flag registered.
func adminFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	dsn := fs.String("db-dsn", "", "Postgres DSN (defaults to PM_DB_DSN)")
	return fs, dsn
}

func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func connect(ctx context.Context, dsn string) (*pgxpool.Pool, int) {
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("PM_DB_DSN"))
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set PM_DB_DSN)")
		return nil, 2
	}
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return nil, 1
	}
	return pool, 0
}

func runMigrate(args []string) int {
	fs, dsn := adminFlags("migrate")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, code := connect(ctx, *dsn)
	if pool == nil {
		return code
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		return 1
	}
	fmt.Fprintln(os.Stdout, "Migrations applied.")
	return 0
}

func runPurgeInvitations(args []string) int {
	fs, dsn := adminFlags("purge-invitations")
	days := fs.Int("days", retention.DefaultRetentionDays, "Keep finished invitations for this many days")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if *days <= 0 {
		fmt.Fprintln(os.Stderr, "--days must be positive")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, code := connect(ctx, *dsn)
	if pool == nil {
		return code
	}
	defer pool.Close()

	deleted, err := retention.PurgeInvitations(ctx, pool, *days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Purge failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "Deleted %d invitations.\n", deleted)
	return 0
}

func runResetPassword(args []string) int {
	fs, dsn := adminFlags("reset-password")
	email := fs.String("email", "", "User email")
	password := fs.String("password", "", "New password (if empty, generates one)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	address := strings.ToLower(strings.TrimSpace(*email))
	if address == "" {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}

	secret := *password
	generated := false
	if secret == "" {
		pw, err := generatePassword(24)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate password: %v\n", err)
			return 1
		}
		secret = pw
		generated = true
	}
	if len(secret) < minPasswordLength {
		fmt.Fprintf(os.Stderr, "Password must be at least %d characters\n", minPasswordLength)
		return 2
	}

	hash, err := auth.HashPassword(secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, code := connect(ctx, *dsn)
	if pool == nil {
		return code
	}
	defer pool.Close()

	tag, err := pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE lower(email) = $1`, address, hash)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to update password: %v\n", err)
		return 1
	}
	if tag.RowsAffected() == 0 {
		fmt.Fprintf(os.Stderr, "No user found with email %q\n", address)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Password updated.")
	if generated {
		fmt.Fprintln(os.Stdout, secret)
	}
	return 0
}

func generatePassword(n int) (string, error) {
	if n < minPasswordLength {
		n = minPasswordLength
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
