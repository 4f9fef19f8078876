package server

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds the server's runtime settings. Everything beyond the TCP
// port is optional tooling around the protocol core.
type Config struct {
	TCPPort     int
	WSPort      int    // 0 disables the WebSocket listener
	MetricsAddr string // empty disables the metrics endpoint
}

// DefaultConfig returns the default configuration. Port 0 asks the kernel
// for an ephemeral port, matching the behavior of running with no port
// argument.
func DefaultConfig() Config {
	return Config{}
}

// TOMLConfig mirrors the optional config file layout.
type TOMLConfig struct {
	Server ServerSection `toml:"server"`
}

type ServerSection struct {
	TCPPort     int    `toml:"tcp_port"`
	WSPort      int    `toml:"ws_port"`
	MetricsAddr string `toml:"metrics_addr"`
}

// LoadConfig reads a TOML config file. An empty path or a missing file
// yields the defaults; the server keeps no on-disk state of its own.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	var fileCfg TOMLConfig
	if _, err := toml.DecodeFile(path, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.TCPPort = fileCfg.Server.TCPPort
	cfg.WSPort = fileCfg.Server.WSPort
	cfg.MetricsAddr = fileCfg.Server.MetricsAddr
	return cfg, nil
}
