package relaynet

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Network struct {
		Transport      string   `yaml:"transport"`
		Port           int      `yaml:"port"`
		BootstrapNodes []string `yaml:"bootstrapNodes"`
		MinPeers       int      `yaml:"minPeers"`
	} `yaml:"network"`
}

// LoadConfig merges an optional YAML config file over the defaults.
// Missing or unreadable files fall back to defaults; the
// HEARTH_NETWORK_TRANSPORT environment variable wins over both.
func LoadConfig(configPath string) Config {
	cfg := DefaultConfig()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates, "configs/config.yaml")
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}
		if parsed.Network.Transport != "" {
			cfg.Transport = parsed.Network.Transport
		}
		if parsed.Network.Port != 0 {
			cfg.Port = parsed.Network.Port
		}
		if parsed.Network.BootstrapNodes != nil {
			cfg.BootstrapNodes = parsed.Network.BootstrapNodes
		}
		if parsed.Network.MinPeers != 0 {
			cfg.MinPeers = parsed.Network.MinPeers
		}
		break
	}

	if transport := strings.TrimSpace(os.Getenv("HEARTH_NETWORK_TRANSPORT")); transport != "" {
		cfg.Transport = transport
	}
	return cfg
}
