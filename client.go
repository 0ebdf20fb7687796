// Package sessionclient assembles the session and credential lifecycle
// manager from configuration: it opens the durable credential store, builds
// the primary and (when configured) federated providers, commits to one of
// them, and restores any persisted session.
package sessionclient

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/orbitlabs/go-session-client/credstore"
	"github.com/orbitlabs/go-session-client/credstore/rediskv"
	"github.com/orbitlabs/go-session-client/credstore/sqlitekv"
	"github.com/orbitlabs/go-session-client/internal/config"
	"github.com/orbitlabs/go-session-client/provider"
	"github.com/orbitlabs/go-session-client/provider/federated"
	"github.com/orbitlabs/go-session-client/provider/primary"
	"github.com/orbitlabs/go-session-client/session"
)

// Client bundles the constructed session manager with the resources it owns.
type Client struct {
	Manager  *session.Manager
	Selector *provider.Selector

	store io.Closer
}

// New builds the full session stack from environment configuration and
// initializes it, restoring a persisted session when one exists. The caller
// owns the returned Client and must Close it at shutdown. Applications that
// need non-default wiring assemble the packages directly instead.
func New(ctx context.Context) (*Client, error) {
	cfg := config.New()
	kv, err := openKV(cfg)
	if err != nil {
		return nil, err
	}

	store, err := credstore.New(kv)
	if err != nil {
		_ = kv.Close()
		return nil, errors.Wrap(err, "[sessionclient.New] credential store")
	}

	primaryProvider, err := primary.New(cfg.GetPrimaryBaseURL())
	if err != nil {
		_ = kv.Close()
		return nil, errors.Wrap(err, "[sessionclient.New] primary provider")
	}

	federatedCfg := federated.Config{
		Issuer:                cfg.GetFederatedIssuer(),
		ClientID:              cfg.GetFederatedClientID(),
		ClientSecret:          cfg.GetFederatedClientSecret(),
		SignupEndpoint:        cfg.GetFederatedSignupEndpoint(),
		PasswordEndpoint:      cfg.GetFederatedPasswordEndpoint(),
		PasswordResetEndpoint: cfg.GetFederatedPasswordResetEndpoint(),
	}

	var federatedProvider provider.CredentialProvider
	if federatedCfg.Usable() {
		fp, err := federated.New(federatedCfg, primaryProvider)
		if err != nil {
			_ = kv.Close()
			return nil, errors.Wrap(err, "[sessionclient.New] federated provider")
		}
		federatedProvider = fp
	}

	selector, err := provider.Select(primaryProvider, federatedProvider, federatedCfg.Usable)
	if err != nil {
		_ = kv.Close()
		return nil, errors.Wrap(err, "[sessionclient.New] provider selection")
	}

	manager, err := session.New(selector, store,
		session.WithOperationTimeout(cfg.GetOperationTimeout()),
		session.WithRenewal(cfg.GetRenewalInterval(), cfg.GetRenewalThreshold()),
		session.WithSessionTokenTTL(cfg.GetSessionTokenTTL()),
	)
	if err != nil {
		_ = kv.Close()
		return nil, errors.Wrap(err, "[sessionclient.New] session manager")
	}

	manager.Initialize(ctx)
	return &Client{Manager: manager, Selector: selector, store: kv}, nil
}

// Close stops the background renewal loop and releases the store backend.
func (c *Client) Close() error {
	c.Manager.Close()
	return c.store.Close()
}

// openKV picks the store backend: Redis when a URL is configured, otherwise
// the local SQLite database.
func openKV(cfg config.StoreConfig) (interface {
	credstore.KV
	io.Closer
}, error) {
	if redisURL := cfg.GetStoreRedisURL(); redisURL != "" {
		kv, err := rediskv.New(redisURL, "")
		if err != nil {
			return nil, errors.Wrap(err, "[sessionclient.openKV] redis backend")
		}
		return kv, nil
	}

	kv, err := sqlitekv.Open(cfg.GetStorePath())
	if err != nil {
		return nil, errors.Wrap(err, "[sessionclient.openKV] sqlite backend")
	}
	return kv, nil
}
