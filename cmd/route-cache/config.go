package main

import (
	"fmt"
	"os"

	routecache "github.com/always-cache/route-cache"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// URL of the origin to proxy to.
	Origin string `yaml:"origin"`
	// Hostname to use for HTTP requests and TLS negotiation.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Cache DB file name, "memory" for in-memory SQLite or "ttlcache".
	DB             string `yaml:"db"`
	DefaultTTL     int    `yaml:"defaultTTL"`
	IncludeQuery   bool   `yaml:"includeQuery"`
	CollapseMisses bool   `yaml:"collapseMisses"`
	// Janitor interval in seconds, 0 disables it.
	SweepInterval int               `yaml:"sweepInterval"`
	Routes        []routecache.Route `yaml:"routes"`
}

func defaultConfig() Config {
	return Config{
		Port:          8080,
		DB:            "cache.db",
		SweepInterval: 60,
	}
}

// getConfig reads the config file on top of the defaults.
// An empty filename returns the defaults.
func getConfig(filename string) (Config, error) {
	config := defaultConfig()
	if filename == "" {
		return config, nil
	}
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, fmt.Errorf("parse %s: %w", filename, err)
	}
	return config, config.validate()
}

func (c Config) validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DefaultTTL < 0 || c.SweepInterval < 0 {
		return fmt.Errorf("defaultTTL and sweepInterval must not be negative")
	}
	for i, route := range c.Routes {
		if route.Path == "" {
			return fmt.Errorf("route %d has no path", i)
		}
		if route.TTL < 0 {
			return fmt.Errorf("route %s has negative ttl", route.Path)
		}
	}
	return nil
}
