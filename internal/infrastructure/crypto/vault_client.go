// Package crypto implements session keypair generation and private-key
// custody. Private keys never leave this package: callers hold opaque
// handles and request signatures through the KeyVault port.
package crypto

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"github.com/bitizen-labs/sessiond/internal/config"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// SecretStore is the storage backend for private-key material.
type SecretStore interface {
	Put(ctx context.Context, path string, data map[string]interface{}) error
	Get(ctx context.Context, path string) (map[string]interface{}, error)
	Delete(ctx context.Context, path string) error
}

// VaultClient is the HashiCorp Vault KV v2 secret store.
type VaultClient struct {
	client    *vault.Client
	mountPath string
	logger    logger.Logger
}

// NewVaultClient creates and configures a Vault KV v2 client.
func NewVaultClient(cfg *config.VaultConfig, log logger.Logger) (*VaultClient, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	mountPath := cfg.MountPath
	if mountPath == "" {
		mountPath = "secret"
	}

	return &VaultClient{
		client:    client,
		mountPath: mountPath,
		logger:    log.WithComponent("VaultClient"),
	}, nil
}

func (v *VaultClient) Put(ctx context.Context, path string, data map[string]interface{}) error {
	_, err := v.client.KVv2(v.mountPath).Put(ctx, path, data)
	return err
}

func (v *VaultClient) Get(ctx context.Context, path string) (map[string]interface{}, error) {
	secret, err := v.client.KVv2(v.mountPath).Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret %s not found", path)
	}
	return secret.Data, nil
}

func (v *VaultClient) Delete(ctx context.Context, path string) error {
	return v.client.KVv2(v.mountPath).Delete(ctx, path)
}
