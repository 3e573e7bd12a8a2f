// Command flussauthctl is the operator tool for flussauth.
//
// Usage:
//
//	flussauthctl migrate up|down|version [--adapter sqlite|postgres] [--dsn DSN]
//	flussauthctl hash-key [--key KEY]
//	flussauthctl token create --user U [--max-sessions N] [--stream S ...] [--ip A ...] [--valid-for D]
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

// usageError marks errors caused by bad invocation (exit code 2).
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }
func (usageError) ExitCode() int   { return 2 }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return usagef("missing command")
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "migrate":
		return runMigrate(rest, stdout)
	case "hash-key":
		return runHashKey(rest, stdin, stdout)
	case "token":
		return runToken(rest, stdout)
	case "-h", "--help", "help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return usagef("unknown command %q", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `flussauthctl: operator tool for flussauth

Commands:
  migrate up|down|version   apply, revert or inspect the embedded schema
  hash-key                  print an argon2id hash for FLUSSAUTH_API_KEY_HASH
  token create              seed a token into the durable store

Run "flussauthctl <command> --help" for command flags.
`)
}

// parseFlags parses fs and maps --help to a nil-error early exit.
func parseFlags(fs *pflag.FlagSet, args []string, out io.Writer) (bool, error) {
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return false, usageError{msg: err.Error()}
	}
	return false, nil
}
