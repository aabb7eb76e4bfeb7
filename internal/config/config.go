// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads winebuild settings from YAML or HCL files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"

	"github.com/goplus/winebuild/internal/env"
)

// ErrUnknownFormat is returned for config files that are neither YAML nor HCL.
var ErrUnknownFormat = errors.New("unknown config format")

// Config holds the settings shared by the plan and build commands. Zero
// values mean "not set".
type Config struct {
	Workspace          string `yaml:"workspace" hcl:"workspace,optional"`
	Variant            string `yaml:"variant" hcl:"variant,optional"`
	Version            string `yaml:"version" hcl:"version,optional"`
	InstallPrefix      string `yaml:"install_prefix" hcl:"install_prefix,optional"`
	Jobs               int    `yaml:"jobs" hcl:"jobs,optional"`
	CrossCompilePrefix string `yaml:"cross_compile_prefix" hcl:"cross_compile_prefix,optional"`
	Arch64             string `yaml:"arch64" hcl:"arch64,optional"`
	Arch32             string `yaml:"arch32" hcl:"arch32,optional"`
	EnableMscoree      bool   `yaml:"enable_mscoree" hcl:"enable_mscoree,optional"`
	EnableTests        bool   `yaml:"enable_tests" hcl:"enable_tests,optional"`
	EnableNoPIC        bool   `yaml:"enable_nopic" hcl:"enable_nopic,optional"`
	ForceAutoconf      bool   `yaml:"force_autoconf" hcl:"force_autoconf,optional"`
	// EnvFile is a dotenv file with toolchain variables. A relative path
	// is taken relative to the config file.
	EnvFile     string `yaml:"env_file" hcl:"env_file,optional"`
	MainlineURL string `yaml:"mainline_url" hcl:"mainline_url,optional"`
	StagingURL  string `yaml:"staging_url" hcl:"staging_url,optional"`
}

// Default returns the built-in settings.
func Default() (*Config, error) {
	ws, err := env.WorkDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		Workspace: ws,
		Variant:   "mainline",
		Jobs:      runtime.NumCPU(),
	}, nil
}

// Load reads the file at path. The format follows the extension: .yaml
// and .yml for YAML, .hcl for HCL.
func Load(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var data []byte
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
		c, err = decodeYAML(data)
	case ".hcl":
		c, err = decodeHCL(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if c.EnvFile != "" && !filepath.IsAbs(c.EnvFile) {
		c.EnvFile = filepath.Join(filepath.Dir(path), c.EnvFile)
	}
	return c, nil
}

func decodeYAML(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return nil, err
	}
	return &c, nil
}

func decodeHCL(path string) (*Config, error) {
	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, diags
	}
	var c Config
	if diags := gohcl.DecodeBody(file.Body, nil, &c); diags.HasErrors() {
		return nil, diags
	}
	return &c, nil
}

// Merge overlays the settings of o that are set onto c.
func (c *Config) Merge(o *Config) {
	str := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	str(&c.Workspace, o.Workspace)
	str(&c.Variant, o.Variant)
	str(&c.Version, o.Version)
	str(&c.InstallPrefix, o.InstallPrefix)
	str(&c.CrossCompilePrefix, o.CrossCompilePrefix)
	str(&c.Arch64, o.Arch64)
	str(&c.Arch32, o.Arch32)
	str(&c.EnvFile, o.EnvFile)
	str(&c.MainlineURL, o.MainlineURL)
	str(&c.StagingURL, o.StagingURL)
	if o.Jobs > 0 {
		c.Jobs = o.Jobs
	}
	c.EnableMscoree = c.EnableMscoree || o.EnableMscoree
	c.EnableTests = c.EnableTests || o.EnableTests
	c.EnableNoPIC = c.EnableNoPIC || o.EnableNoPIC
	c.ForceAutoconf = c.ForceAutoconf || o.ForceAutoconf
}

// Resolve returns the defaults overlaid with the file at path. An empty
// path falls back to the per-user config file when it exists.
func Resolve(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		userFile, err := env.ConfigFile()
		if err != nil {
			return c, nil
		}
		if _, err := os.Stat(userFile); err != nil {
			return c, nil
		}
		path = userFile
	}
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.Merge(f)
	return c, nil
}
