package config

import (
	"errors"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

// KeyringService is the keychain service name holding provider keys.
const KeyringService = "enrichment-cli"

// SecretGetter reads one keychain entry. keyring.Get satisfies it.
type SecretGetter func(service, user string) (string, error)

// secretTargets maps a provider name to the config field it fills.
func (c *Config) secretTargets() map[string]*string {
	return map[string]*string{
		"jina":      &c.Jina.Key,
		"firecrawl": &c.Firecrawl.Key,
		"google":    &c.Google.Key,
		"anthropic": &c.Anthropic.Key,
		"gemini":    &c.Gemini.Key,
		"notion":    &c.Notion.Token,
	}
}

// SecretProviders lists the provider names the keychain can hold.
func SecretProviders() []string {
	var c Config
	names := make([]string, 0, 6)
	for name := range c.secretTargets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveSecrets fills empty provider keys from the keychain. Values from
// config.yaml or the environment are never replaced. A missing entry is
// not an error.
func ResolveSecrets(cfg *Config, get SecretGetter) error {
	if get == nil {
		get = keyring.Get
	}
	for provider, dst := range cfg.secretTargets() {
		if *dst != "" {
			continue
		}
		v, err := get(KeyringService, provider)
		if errors.Is(err, keyring.ErrNotFound) {
			continue
		}
		if err != nil {
			// A headless host has no keychain; env vars still work there.
			zap.L().Debug("config: keychain unavailable", zap.String("provider", provider), zap.Error(err))
			continue
		}
		*dst = v
	}
	return nil
}

// SetSecret stores a provider key in the keychain.
func SetSecret(provider, value string) error {
	if err := checkProvider(provider); err != nil {
		return err
	}
	if value == "" {
		return eris.Errorf("config: empty secret for %s", provider)
	}
	return eris.Wrapf(keyring.Set(KeyringService, provider, value), "config: store secret for %s", provider)
}

// DeleteSecret removes a provider key from the keychain.
func DeleteSecret(provider string) error {
	if err := checkProvider(provider); err != nil {
		return err
	}
	err := keyring.Delete(KeyringService, provider)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return eris.Wrapf(err, "config: delete secret for %s", provider)
}

func checkProvider(provider string) error {
	var c Config
	if _, ok := c.secretTargets()[provider]; !ok {
		return eris.Errorf("config: unknown secret provider %q", provider)
	}
	return nil
}
