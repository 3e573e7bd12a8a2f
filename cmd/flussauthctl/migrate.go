package main

import (
	"fmt"
	"io"

	"flussauth/cmd/internal/db"

	"github.com/spf13/pflag"
)

func runMigrate(args []string, stdout io.Writer) error {
	var flags dbFlags
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	flags.add(fs)
	if help, err := parseFlags(fs, args, stdout); help || err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) != 1 {
		return usagef("usage: flussauthctl migrate up|down|version [--adapter A] [--dsn DSN]")
	}

	adapter, dsn, err := flags.resolve()
	if err != nil {
		return err
	}

	if rest[0] == "version" {
		v, dirty, err := db.Version(adapter, dsn)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "version=%d dirty=%t\n", v, dirty)
		return nil
	}

	dir, err := db.ParseDirection(rest[0])
	if err != nil {
		return usagef("%v", err)
	}
	if err := db.Migrate(adapter, dsn, dir); err != nil {
		return err
	}
	v, _, err := db.Version(adapter, dsn)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "migrate %s: ok (adapter=%s version=%d)\n", dir, adapter, v)
	return nil
}
