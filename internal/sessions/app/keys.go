package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/sessions/internal/sessions/store"
	"github.com/aussiebroadwan/sessions/pkg/cryptox"
	"github.com/aussiebroadwan/sessions/pkg/jwtx"
)

// InitKeys creates the KeyManager for the configured storage mode. The
// returned Sealer is nil in ephemeral mode.
//
// Storage modes:
//   - "ephemeral": keys live in memory only. Every token becomes invalid
//     when the process restarts, and instances cannot verify each other's
//     tokens.
//   - "persistent": keys are sealed with the master key and stored in the
//     database, so all instances sharing it sign and verify with the same set.
func InitKeys(ctx context.Context, cfg Config, db store.Store, logger *slog.Logger) (*jwtx.KeyManager, jwtx.Sealer, error) {
	opts := jwtx.KeyManagerOptions{
		Algorithm: cfg.Algorithm,
		RSABits:   cfg.RSABits,
		NumKeys:   cfg.NumKeys,
	}

	if cfg.KeyStorageMode == KeyStorageEphemeral {
		km, err := jwtx.NewEphemeralKeyManager(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
		}
		logger.Info("generated ephemeral signing keys", "algorithm", km.Algorithm(), "num_keys", km.NumSigners())
		logger.Warn("tokens issued before this start are no longer verifiable")
		return km, nil, nil
	}

	sealer, err := cryptox.LoadKeySealer(cfg.MasterKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load master key: %w", err)
	}

	km, err := jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
		KeyManagerOptions: opts,
		Store:             store.NewKeyStoreAdapter(db),
		Sealer:            sealer,
		Lifetime:          cfg.KeyLifetime(),
		MaxTokenTTL:       cfg.MaxTokenTTL(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize persistent key manager: %w", err)
	}
	logger.Info("persistent signing keys loaded", "algorithm", km.Algorithm(), "num_keys", km.NumSigners())
	return km, sealer, nil
}
