package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"flussauth/cmd/identity"
	"flussauth/cmd/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"
)

func runToken(args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] != "create" {
		return usagef("usage: flussauthctl token create --user U [flags]")
	}

	var (
		flags       dbFlags
		userID      string
		value       string
		maxSessions int
		streams     []string
		ips         []string
		validFor    time.Duration
	)
	fs := pflag.NewFlagSet("token create", pflag.ContinueOnError)
	flags.add(fs)
	fs.StringVar(&userID, "user", "", "owning identity (required)")
	fs.StringVar(&value, "token", "", "token value (random when omitted)")
	fs.IntVar(&maxSessions, "max-sessions", 1, "concurrent session limit")
	fs.StringSliceVar(&streams, "stream", nil, "allowed stream name (repeatable; none means any)")
	fs.StringSliceVar(&ips, "ip", nil, "allowed client address (repeatable; none means any)")
	fs.DurationVar(&validFor, "valid-for", 0, "validity window from now (0 means no expiry)")
	if help, err := parseFlags(fs, args[1:], stdout); help || err != nil {
		return err
	}

	if userID == "" {
		return usagef("--user is required")
	}
	if maxSessions <= 0 {
		return usagef("--max-sessions must be positive")
	}
	if validFor < 0 {
		return usagef("--valid-for must not be negative")
	}
	if value == "" {
		v, err := identity.NewOpaqueToken(24)
		if err != nil {
			return err
		}
		value = v
	}

	adapter, dsn, err := flags.resolve()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, closeFn, err := openTokenStore(ctx, adapter, dsn)
	if err != nil {
		return err
	}
	defer closeFn()

	now := time.Now().UTC()
	in := identity.CreateTokenInput{
		Token:          value,
		UserID:         userID,
		Status:         identity.StatusActive,
		MaxSessions:    maxSessions,
		ValidFrom:      now,
		AllowedIPs:     ips,
		AllowedStreams: streams,
		Metadata:       map[string]any{"created_by": "flussauthctl"},
		Now:            now,
	}
	if validFor > 0 {
		until := now.Add(validFor)
		in.ValidUntil = &until
	}

	tok, err := store.Create(ctx, in)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"id":              tok.ID,
		"token":           tok.Token,
		"user_id":         tok.UserID,
		"max_sessions":    tok.MaxSessions,
		"valid_from":      tok.ValidFrom,
		"valid_until":     tok.ValidUntil,
		"allowed_ips":     tok.AllowedIPs,
		"allowed_streams": tok.AllowedStreams,
	})
}

func openTokenStore(ctx context.Context, adapter, dsn string) (identity.Store, func(), error) {
	switch adapter {
	case db.AdapterSQLite:
		sqlDB, err := db.OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		st, err := identity.NewSQLiteStore(sqlDB)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return st, func() { _ = sqlDB.Close() }, nil
	case db.AdapterPostgres:
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		st, err := identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, pool.Close, nil
	default:
		return nil, nil, usagef("adapter must be sqlite or postgres, got %q", adapter)
	}
}
