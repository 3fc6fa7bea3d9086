// Command token mints a session token for local development and smoke tests.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"geoattend/internal/auth"
	"geoattend/internal/config"
)

var errHelp = errors.New("help provided")

func main() {
	if err := run(config.Load(), os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(cfg config.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	id := fs.String("id", "", "actor id to place in the sub claim")
	role := fs.String("role", "teacher", "actor role: admin, teacher or student")
	ttl := fs.Duration("ttl", cfg.AccessTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return err
	}
	if *id == "" {
		fs.Usage()
		return errHelp
	}

	r, err := auth.ParseRole(*role)
	if err != nil {
		return err
	}
	tok, err := auth.Issue(auth.Actor{ID: *id, Role: r}, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, tok.AccessToken)
	fmt.Fprintf(out, "expires %s\n", tok.ExpiresAt.Format(time.RFC3339))
	return nil
}
