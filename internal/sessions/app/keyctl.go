package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/pkg/cryptox"
)

const keysUsage = "usage: keys list | keys rotate [-retire-existing] | keys retire -kid KID"

// Keys implements the keys subcommand for inspecting and rotating the
// persisted signing keys. Running instances pick up changes on their next
// housekeeping pass, or sooner when they meet a token signed by a new key.
func Keys(ctx context.Context, cfg Config, args []string, out io.Writer) error {
	if cfg.KeyStorageMode != KeyStoragePersistent {
		return errors.New("keys: signing keys are only stored with KEY_STORAGE_MODE=persistent")
	}
	if len(args) == 0 {
		return errors.New(keysUsage)
	}

	fs := flag.NewFlagSet("keys "+args[0], flag.ContinueOnError)
	fs.SetOutput(out)
	retireExisting := fs.Bool("retire-existing", false, "retire every other active key")
	kid := fs.String("kid", "", "key to retire")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	db, err := OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sealer, err := cryptox.LoadKeySealer(cfg.MasterKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load master key: %w", err)
	}
	svc := &service.KeyRotationService{
		Store:     db,
		Sealer:    sealer,
		Algorithm: cfg.Algorithm,
		RSABits:   cfg.RSABits,
		Lifetime:  cfg.KeyLifetime(),
	}

	switch args[0] {
	case "list":
		keys, err := svc.ListKeys(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KID\tALGORITHM\tCREATED\tEXPIRES\tSTATUS")
		for _, k := range keys {
			status := "active"
			if k.RetiredAt != nil {
				status = "retired " + k.RetiredAt.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k.Kid, k.Algorithm,
				k.CreatedAt.Format(time.RFC3339), k.ExpiresAt.Format(time.RFC3339), status)
		}
		return tw.Flush()

	case "rotate":
		res, err := svc.RotateKey(ctx, *retireExisting)
		if err != nil {
			return fmt.Errorf("keys rotate: %w", err)
		}
		fmt.Fprintf(out, "created key %s (%s, expires %s)\n",
			res.NewKey.Kid, res.NewKey.Algorithm, res.NewKey.ExpiresAt.Format(time.RFC3339))
		for _, r := range res.Retired {
			fmt.Fprintf(out, "retired key %s\n", r)
		}
		return nil

	case "retire":
		if *kid == "" {
			return errors.New("keys retire: -kid is required")
		}
		if err := svc.RetireKey(ctx, *kid); err != nil {
			return fmt.Errorf("keys retire: %w", err)
		}
		fmt.Fprintf(out, "retired key %s\n", *kid)
		return nil
	}
	return errors.New(keysUsage)
}
