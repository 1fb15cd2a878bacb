// Package config loads NodeConfig/ClusterConfig from environment files and
// YAML cluster manifests, the builder's "env / config loading" external
// interface (spec.md §6 and §2's AMBIENT STACK).
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

// NodeConfig describes this process's own identity and listen address.
type NodeConfig struct {
	Id            int32           `yaml:"id"`
	ListenAddress types.Address   `yaml:"listenAddress"`
	SharedKey     string          `yaml:"sharedKey"`
	KeyChain      []string        `yaml:"keyChain"`
}

// PeerConfig describes one other cluster member known at startup.
type PeerConfig struct {
	Id      int32         `yaml:"id"`
	Address types.Address `yaml:"address"`
}

// ClusterConfig is the full YAML cluster manifest: this node plus the
// peers it should attempt to reach at startup, and the default dispatch
// policy new publishes use when the caller does not override it.
type ClusterConfig struct {
	Node          NodeConfig             `yaml:"node"`
	Peers         []PeerConfig           `yaml:"peers"`
	DefaultPolicy string                 `yaml:"defaultPolicy"`
}

// LoadEnv loads a .env file (if present) into the process environment,
// following the Synnergy example's direct use of joho/godotenv for local
// development configuration. A missing file is not an error.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// LoadClusterConfig parses a YAML cluster manifest.
func LoadClusterConfig(path string) (*ClusterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("syncmesh/config: reading %s: %w", path, err)
	}
	var cfg ClusterConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("syncmesh/config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolvePolicy maps the manifest's string dispatch policy name to a
// types.DispatchPolicy, defaulting to UnicastPlain when unset.
func (c *ClusterConfig) ResolvePolicy() (types.DispatchPolicy, error) {
	switch c.DefaultPolicy {
	case "", "UNICAST":
		return types.UnicastPlain, nil
	case "UNICAST_QUORUM":
		return types.UnicastQuorum, nil
	case "UNICAST_BALANCE":
		return types.UnicastBalancePlain, nil
	case "UNICAST_BALANCE_QUORUM":
		return types.UnicastBalanceQuorum, nil
	case "RING":
		return types.RingPlain, nil
	case "RING_QUORUM":
		return types.RingQuorum, nil
	case "RING_BALANCE":
		return types.RingBalancePlain, nil
	case "RING_BALANCE_QUORUM":
		return types.RingBalanceQuorum, nil
	case "ONE_OF":
		return types.OneOf, nil
	default:
		return 0, fmt.Errorf("syncmesh/config: unknown dispatch policy %q", c.DefaultPolicy)
	}
}
