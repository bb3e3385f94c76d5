package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const appDir = "onchain-voice-lab"

// Manifest is the on-disk mcp.json layout.
type Manifest struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig describes how to reach one MCP server.
type ServerConfig struct {
	Transport *TransportConfig  `json:"transport,omitempty"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Enabled   *bool             `json:"enabled,omitempty"`
}

// TransportConfig holds remote connection details.
type TransportConfig struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// Result is the merged view of every manifest that was found.
type Result struct {
	Servers map[string]ServerConfig
	Order   []string
	Sources []string
}

// EnabledValue reports whether the server should be used. Servers are
// enabled unless the manifest says otherwise.
func (s ServerConfig) EnabledValue() bool {
	return s.Enabled == nil || *s.Enabled
}

// LoadResult loads MCP_CONFIG_PATH when set. Otherwise it merges the
// workspace manifest (./.onchain-voice-lab/mcp.json) and the user manifest
// ($XDG_CONFIG_HOME/onchain-voice-lab/mcp.json), the user file winning on
// name clashes. Missing files are not an error.
func LoadResult() (Result, error) {
	if override := os.Getenv("MCP_CONFIG_PATH"); override != "" {
		return Load(true, override)
	}
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, "."+appDir, "mcp.json"))
	}
	if base, err := userConfigDir(); err == nil {
		paths = append(paths, filepath.Join(base, appDir, "mcp.json"))
	}
	return Load(false, paths...)
}

// Load merges the manifests at paths in order. With required set, a
// missing file is an error.
func Load(required bool, paths ...string) (Result, error) {
	result := Result{Servers: make(map[string]ServerConfig)}
	for _, p := range paths {
		path, err := expandPath(p)
		if err != nil {
			return result, err
		}
		manifest, err := readManifest(path)
		if errors.Is(err, os.ErrNotExist) && !required {
			continue
		}
		if err != nil {
			return result, err
		}
		for name, cfg := range manifest.Servers {
			result.Servers[name] = normalizeConfig(cfg)
		}
		result.Sources = append(result.Sources, path)
	}
	result.Order = make([]string, 0, len(result.Servers))
	for name := range result.Servers {
		result.Order = append(result.Order, name)
	}
	sort.Strings(result.Order)
	return result, nil
}

func readManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return manifest, nil
}

// normalizeConfig expands ~ in paths and ${VAR} references in env values,
// so secrets can stay in the environment instead of the manifest.
func normalizeConfig(cfg ServerConfig) ServerConfig {
	if cfg.Args != nil {
		out := make([]string, len(cfg.Args))
		for i, arg := range cfg.Args {
			out[i] = expandOrKeep(arg)
		}
		cfg.Args = out
	}
	cfg.Command = expandOrKeep(cfg.Command)
	if len(cfg.Env) > 0 {
		env := make(map[string]string, len(cfg.Env))
		for k, v := range cfg.Env {
			env[k] = os.ExpandEnv(expandOrKeep(v))
		}
		cfg.Env = env
	}
	if cfg.Transport != nil {
		t := *cfg.Transport
		t.URL = os.ExpandEnv(t.URL)
		cfg.Transport = &t
	}
	return cfg
}

func userConfigDir() (string, error) {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return base, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config"), nil
}

func expandOrKeep(value string) string {
	if expanded, err := expandPath(value); err == nil {
		return expanded
	}
	return value
}

func expandPath(value string) (string, error) {
	if !strings.HasPrefix(value, "~") {
		return value, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return value, err
	}
	if value == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(value[1:], "/")), nil
}
