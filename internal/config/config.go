// ABOUTME: Settings loading with global + project YAML config deep merge
// ABOUTME: Applies ${VAR} expansion, then NANOBOT_* environment overrides

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither config files nor environment set a value.
const (
	DefaultEndpointPath      = "/mcp/ui"
	DefaultClientName        = "nanobot-go"
	DefaultClientVersion     = "1.0.0"
	DefaultRequestTimeout    = 30 * time.Second
	DefaultStreamIdleTimeout = 5 * time.Minute
)

// Settings holds the merged configuration.
type Settings struct {
	ServerURL         string   `yaml:"server_url,omitempty"`
	EndpointPath      string   `yaml:"endpoint_path,omitempty"`
	ClientName        string   `yaml:"client_name,omitempty"`
	ClientVersion     string   `yaml:"client_version,omitempty"`
	AuthToken         string   `yaml:"auth_token,omitempty"`
	RequestTimeout    Duration `yaml:"request_timeout,omitempty"`
	StreamIdleTimeout Duration `yaml:"stream_idle_timeout,omitempty"`
	LogLevel          string   `yaml:"log_level,omitempty"`
	DefaultAgent      string   `yaml:"default_agent,omitempty"`
}

// Duration is a time.Duration that reads "30s"-style strings from YAML.
type Duration time.Duration

// UnmarshalYAML parses a duration string such as "45s" or "5m".
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads and merges global and project-local settings.
// Project settings override global settings; environment overrides both.
func Load(projectRoot string) (*Settings, error) {
	global, err := loadFile(GlobalConfigFile())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading global config: %w", err)
	}

	project, err := loadFile(ProjectConfigFile(projectRoot))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	merged := merge(global, project)
	ResolveEnvVars(merged)
	applyEnvOverrides(merged)
	applyDefaults(merged)
	return merged, nil
}

// loadFile reads Settings from a YAML file. Returns zero Settings and the
// os error if the file does not exist.
func loadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Settings{}, err
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &s, nil
}

// merge overlays non-zero project values onto global settings.
func merge(global, project *Settings) *Settings {
	if global == nil {
		global = &Settings{}
	}
	if project == nil {
		return global
	}

	result := *global

	overlay := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	overlay(&result.ServerURL, project.ServerURL)
	overlay(&result.EndpointPath, project.EndpointPath)
	overlay(&result.ClientName, project.ClientName)
	overlay(&result.ClientVersion, project.ClientVersion)
	overlay(&result.AuthToken, project.AuthToken)
	overlay(&result.LogLevel, project.LogLevel)
	overlay(&result.DefaultAgent, project.DefaultAgent)

	if project.RequestTimeout != 0 {
		result.RequestTimeout = project.RequestTimeout
	}
	if project.StreamIdleTimeout != 0 {
		result.StreamIdleTimeout = project.StreamIdleTimeout
	}

	return &result
}

func applyEnvOverrides(s *Settings) {
	if v := strings.TrimSpace(os.Getenv("NANOBOT_SERVER_URL")); v != "" {
		s.ServerURL = v
	}
	if v := strings.TrimSpace(os.Getenv("NANOBOT_AUTH_TOKEN")); v != "" {
		s.AuthToken = v
	}
	if v := strings.TrimSpace(os.Getenv("NANOBOT_LOG_LEVEL")); v != "" {
		s.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("NANOBOT_STREAM_IDLE_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.StreamIdleTimeout = Duration(d)
		}
	}
}

func applyDefaults(s *Settings) {
	if s.EndpointPath == "" {
		s.EndpointPath = DefaultEndpointPath
	}
	if s.ClientName == "" {
		s.ClientName = DefaultClientName
	}
	if s.ClientVersion == "" {
		s.ClientVersion = DefaultClientVersion
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if s.StreamIdleTimeout == 0 {
		s.StreamIdleTimeout = Duration(DefaultStreamIdleTimeout)
	}
}
