package config

import (
	"fmt"
	"strings"
)

const (
	apiURLEnvVar  = "SATELLITE_API_URL"
	networkEnvVar = "SATELLITE_NETWORK"
)

const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"

	// MainnetURL is the production API.
	MainnetURL = "https://api.blockstream.space"
	// TestnetURL is the test API.
	TestnetURL = "https://api.blockstream.space/testnet"
)

var networkAliases = map[string]string{
	"":        NetworkMainnet,
	"main":    NetworkMainnet,
	"mainnet": NetworkMainnet,
	"prod":    NetworkMainnet,
	"test":    NetworkTestnet,
	"testnet": NetworkTestnet,
}

// NormalizeNetwork maps a network name or alias to its canonical form.
func NormalizeNetwork(network string) (string, error) {
	canonical, ok := networkAliases[strings.ToLower(strings.TrimSpace(network))]
	if !ok {
		return "", fmt.Errorf("api.network '%s' is not one of mainnet, testnet", network)
	}
	return canonical, nil
}

// NetworkURL returns the well-known base URL of a network.
func NetworkURL(network string) (string, error) {
	canonical, err := NormalizeNetwork(network)
	if err != nil {
		return "", err
	}
	if canonical == NetworkTestnet {
		return TestnetURL, nil
	}
	return MainnetURL, nil
}

// ResolveAPIURL picks the base URL with this precedence: an explicit custom
// URL, the test flag, the configured URL, then the configured network.
// The returned URL is not validated here.
func (c *Config) ResolveAPIURL(test bool, custom string) (string, error) {
	if custom = strings.TrimSpace(custom); custom != "" {
		return custom, nil
	}
	if test {
		return TestnetURL, nil
	}
	if c.API.URL != "" {
		return c.API.URL, nil
	}
	return NetworkURL(c.API.Network)
}
