package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/pkg/cryptox"
)

// UserAdd implements the useradd subcommand. When no password is given a
// random one is generated and printed.
func UserAdd(ctx context.Context, cfg Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	fs.SetOutput(out)
	var (
		username = fs.String("username", "", "login name (required)")
		email    = fs.String("email", "", "email address")
		password = fs.String("password", "", "password; generated when empty")
		staff    = fs.Bool("staff", false, "allow managing other users' sessions")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		fs.Usage()
		return errors.New("useradd: -username is required")
	}

	generated := false
	if *password == "" {
		p, err := cryptox.GeneratePassword()
		if err != nil {
			return err
		}
		*password = p
		generated = true
	}

	db, err := OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	hasher, err := cryptox.LoadPasswordHasher(cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	identity, err := service.NewLocalIdentityStore(db, hasher)
	if err != nil {
		return err
	}

	u, err := identity.CreateUser(ctx, service.NewUser{
		Username: *username,
		Email:    *email,
		Password: *password,
		IsStaff:  *staff,
	})
	if err != nil {
		return fmt.Errorf("useradd: %w", err)
	}

	fmt.Fprintf(out, "created user %s (%s)\n", u.Username, u.ID)
	if generated {
		fmt.Fprintf(out, "password: %s\n", *password)
	}
	return nil
}
