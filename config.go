package scripthost

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-scripthost/compiler"
	"github.com/wippyai/wasm-scripthost/engine"
	"github.com/wippyai/wasm-scripthost/errors"
	"github.com/wippyai/wasm-scripthost/host"
)

// Config holds manager settings. It can be read from a TOML file:
//
//	name = "TestAssembly"
//	overrides = ["shared"]
//	local_dir = "plugins"
//	system_dir = "/usr/lib/scripthost"
//
//	[engine]
//	memory_limit_pages = 256
type Config struct {
	// Compiler defaults to the WAT compiler.
	Compiler compiler.Service `toml:"-"`
	// Hosts adds host functions to the unit.
	Hosts  *host.Registry `toml:"-"`
	Logger *zap.Logger    `toml:"-"`

	// Name is the module name scripts are built into.
	Name string `toml:"name"`

	// Header and Footer wrap the script fragments. See build.Config.
	Header string `toml:"header"`
	Footer string `toml:"footer"`

	// Location is the owner's own file; its directory roots dependency
	// resolution. Defaults to the running executable.
	Location string `toml:"location"`

	// LocalDir and SystemDir root #Local: and #System: references.
	LocalDir  string `toml:"local_dir"`
	SystemDir string `toml:"system_dir"`

	// Overrides always resolve from disk, never from the registry.
	Overrides []string `toml:"overrides"`

	// SearchPaths are probed after the directory of Location.
	SearchPaths []string `toml:"search_paths"`

	Engine engine.Config `toml:"engine"`
}

// Defaults returns a configuration rooted at the running executable:
// references resolve next to it and system references in its lib
// subdirectory.
func Defaults() *Config {
	location, err := os.Executable()
	if err != nil {
		location = os.Args[0]
	}
	if abs, err := filepath.Abs(location); err == nil {
		location = abs
	}
	dir := filepath.Dir(location)
	return &Config{
		Location:  location,
		LocalDir:  dir,
		SystemDir: filepath.Join(dir, "lib"),
	}
}

// LoadConfig reads a TOML file over Defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Defaults()
	if err := cfg.LoadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes a TOML file over c. Keys absent from the file keep
// their current values; relative directories in the file are taken
// relative to the file.
func (c *Config) LoadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode "+path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(undecoded[0].String()).
			Detail("%s: unknown key %q", path, undecoded[0].String()).
			Build()
	}

	base := filepath.Dir(path)
	rel := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	if md.IsDefined("location") {
		c.Location = rel(c.Location)
	}
	if md.IsDefined("local_dir") {
		c.LocalDir = rel(c.LocalDir)
	}
	if md.IsDefined("system_dir") {
		c.SystemDir = rel(c.SystemDir)
	}
	if md.IsDefined("search_paths") {
		for i, p := range c.SearchPaths {
			c.SearchPaths[i] = rel(p)
		}
	}
	return nil
}
