package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"flussauth/cmd/security/apikey"

	"github.com/spf13/pflag"
)

func runHashKey(args []string, stdin io.Reader, stdout io.Writer) error {
	var key string
	fs := pflag.NewFlagSet("hash-key", pflag.ContinueOnError)
	fs.StringVar(&key, "key", "", "API key to hash (read from stdin when omitted)")
	if help, err := parseFlags(fs, args, stdout); help || err != nil {
		return err
	}

	if !fs.Changed("key") {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read key: %w", err)
		}
		key = line
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return usagef("empty key")
	}

	hash, err := apikey.HashArgon2id(key, apikey.DefaultArgon2idParams())
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash)
	return nil
}
