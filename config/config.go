// Package config loads the boot configuration of a mesh node.
//
// Config is read once at startup from /etc/meshnode/boot.yaml. Environment
// variables override the file and CLI flags override both. A missing file
// yields defaults, which boot the node in legacy mode.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"meshnode"
	"meshnode/node/bridge"
	"meshnode/node/stage"
	"meshnode/platform"

	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvMode   = "MESHNODE_MODE"
	EnvBridge = "MESHNODE_BRIDGE"
	EnvRole   = "MESHNODE_ROLE"
)

// Config is the boot configuration as written on disk.
type Config struct {
	Mode     string                   `yaml:"mode"`
	Role     string                   `yaml:"role,omitempty"`
	Bridge   string                   `yaml:"bridge,omitempty"`
	Identity Identity                 `yaml:"identity"`
	Poll     Poll                     `yaml:"poll"`
	Legacy   Legacy                   `yaml:"legacy"`
	Journal  Journal                  `yaml:"journal"`
	Stages   stage.Plan               `yaml:"stages,omitempty"`
	Services map[string]stage.Options `yaml:"services,omitempty"`
}

// Identity locates the identity file and the interface whose MAC seeds it.
type Identity struct {
	Path      string `yaml:"path"`
	Interface string `yaml:"interface"`
}

// Poll configures the readiness gates. Zero timeouts wait forever.
type Poll struct {
	Interval      Duration `yaml:"interval"`
	BridgeTimeout Duration `yaml:"bridge_timeout"`
	MarkerTimeout Duration `yaml:"marker_timeout"`
}

// Legacy is the single-node entrypoint legacy mode hands over to.
type Legacy struct {
	Command []string `yaml:"command"`
}

// Journal configures the boot journal. An empty path disables it.
type Journal struct {
	Path string `yaml:"path"`
}

// Duration is a time.Duration written as a string such as "1s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Mode: meshnode.ModeLegacy.String(),
		Identity: Identity{
			Path:      platform.IdentityPath,
			Interface: platform.IdentityInterface,
		},
		Poll:    Poll{Interval: Duration(time.Second)},
		Legacy:  Legacy{Command: []string{platform.LegacyEntrypoint}},
		Journal: Journal{Path: platform.JournalPath},
	}
}

// Load reads the config file at path on top of the defaults, then applies
// environment overrides. If the file does not exist, the defaults are used
// (not an error).
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("No boot config found, using defaults.", "path", path)
	case err != nil:
		return Config{}, &meshnode.ConfigurationError{Field: "file", Message: "read " + path, Err: err}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &meshnode.ConfigurationError{Field: "file", Message: "parse " + path, Err: err}
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides mode, bridge and role from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvMode); ok {
		c.Mode = v
	}
	if v, ok := lookup(EnvBridge); ok {
		c.Bridge = v
	}
	if v, ok := lookup(EnvRole); ok {
		c.Role = v
	}
}

// Plan returns the stage plan with per-service options applied and
// validated. Without configured stages the default plan is used.
func (c Config) Plan() (stage.Plan, error) {
	plan := c.Stages
	if len(plan) == 0 {
		plan = stage.DefaultPlan()
	}
	plan, err := plan.WithOptions(c.Services)
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// Boot is a validated configuration ready to drive a boot run.
type Boot struct {
	Mode   meshnode.Mode
	Bridge bridge.Spec
	Plan   stage.Plan
}

// Resolve validates the configuration for its mode. Mesh-only settings are
// ignored in legacy mode. Errors are *meshnode.ConfigurationError.
func (c Config) Resolve() (Boot, error) {
	mode, ok := meshnode.ParseMode(c.Mode)
	if !ok {
		slog.Warn("Unrecognised mode, booting legacy.", "mode", c.Mode)
	}

	boot := Boot{Mode: mode}
	if mode == meshnode.ModeLegacy {
		if len(c.Legacy.Command) == 0 || strings.TrimSpace(c.Legacy.Command[0]) == "" {
			return Boot{}, &meshnode.ConfigurationError{Field: "legacy.command", Message: "legacy entrypoint is required"}
		}
		return boot, nil
	}

	if err := c.validatePoll(); err != nil {
		return Boot{}, err
	}

	if strings.TrimSpace(c.Identity.Path) == "" {
		return Boot{}, &meshnode.ConfigurationError{Field: "identity.path", Message: "identity path is required"}
	}
	if strings.TrimSpace(c.Identity.Interface) == "" {
		return Boot{}, &meshnode.ConfigurationError{Field: "identity.interface", Message: "mac source interface is required"}
	}
	spec, err := bridge.ParseSpec(c.Bridge)
	if err != nil {
		return Boot{}, err
	}
	plan, err := c.Plan()
	if err != nil {
		return Boot{}, err
	}
	boot.Bridge = spec
	boot.Plan = plan
	return boot, nil
}

func (c Config) validatePoll() error {
	for _, d := range []struct {
		field string
		value Duration
	}{
		{"poll.interval", c.Poll.Interval},
		{"poll.bridge_timeout", c.Poll.BridgeTimeout},
		{"poll.marker_timeout", c.Poll.MarkerTimeout},
	} {
		if d.value < 0 {
			return &meshnode.ConfigurationError{Field: d.field, Message: fmt.Sprintf("must not be negative, got %s", d.value)}
		}
	}
	return nil
}
