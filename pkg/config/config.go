// Package config loads gotodef.yaml or gotodef.hcl and turns it into checked
// settings.
package config

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/walteh/gotodef/pkg/editor"
	"github.com/walteh/gotodef/pkg/introspect"
	"github.com/walteh/gotodef/pkg/lexer"
)

// FileNames are looked up, in order, by Find.
var FileNames = []string{"gotodef.yaml", "gotodef.yml", "gotodef.hcl"}

// Config is the file format.
type Config struct {
	ModifierKey     string   `json:"modifier_key,omitempty" yaml:"modifier_key,omitempty" hcl:"modifier_key,optional"`
	DefaultLanguage string   `json:"default_language,omitempty" yaml:"default_language,omitempty" hcl:"default_language,optional"`
	SearchPaths     []string `json:"search_paths,omitempty" yaml:"search_paths,omitempty" hcl:"search_paths,optional"`
	LogLevel        string   `json:"log_level,omitempty" yaml:"log_level,omitempty" hcl:"log_level,optional"`

	Introspection *IntrospectionBlock `json:"introspection,omitempty" yaml:"introspection,omitempty" hcl:"introspection,block"`
}

type IntrospectionBlock struct {
	Enabled        bool                `json:"enabled" yaml:"enabled" hcl:"enabled,optional"`
	Timeout        string              `json:"timeout,omitempty" yaml:"timeout,omitempty" hcl:"timeout,optional"`
	StaleResponses string              `json:"stale_responses,omitempty" yaml:"stale_responses,omitempty" hcl:"stale_responses,optional"`
	Interpreters   map[string][]string `json:"interpreters,omitempty" yaml:"interpreters,omitempty" hcl:"interpreters,optional"`
	// KernelCommand starts a process that serves kernel/execute over
	// newline-delimited JSON-RPC on its stdio. It takes precedence over the
	// interpreters.
	KernelCommand []string `json:"kernel_command,omitempty" yaml:"kernel_command,omitempty" hcl:"kernel_command,optional"`
}

// Settings is a validated Config.
type Settings struct {
	Modifier        editor.KeyModifier
	DefaultLanguage lexer.Language
	SearchPaths     []string
	LogLevel        zerolog.Level
	Introspection   IntrospectionSettings
}

type IntrospectionSettings struct {
	Enabled       bool
	Timeout       time.Duration
	StalePolicy   introspect.StalePolicy
	Interpreters  map[lexer.Language][]string
	KernelCommand []string
}

const DefaultTimeout = 2 * time.Second

func Default() *Config {
	return &Config{}
}

// Find returns the first config file present in dir.
func Find(fsys afero.Fs, dir string) (string, bool) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if ok, _ := afero.Exists(fsys, p); ok {
			return p, true
		}
	}
	return "", false
}

// Load reads a YAML (.yaml, .yml) or HCL file. In HCL, the variable
// "workspace" holds the workspace root.
func Load(fsys afero.Fs, path, workspace string) (*Config, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		var cfg Config
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			// an empty file is an empty config
			if errors.Is(err, io.EOF) {
				return Default(), nil
			}
			return nil, errors.Errorf("parsing YAML: %w", err)
		}
		return &cfg, nil
	}

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"workspace": cty.StringVal(workspace),
		},
	}

	var cfg Config
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &cfg)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	return &cfg, nil
}

// LoadSettings loads path, or the first of FileNames found in workspace when
// path is empty, and resolves it. Without any file the defaults apply.
func LoadSettings(ctx context.Context, fsys afero.Fs, path, workspace string) (*Settings, error) {
	if path == "" {
		found, ok := Find(fsys, workspace)
		if !ok {
			zerolog.Ctx(ctx).Debug().Str("workspace", workspace).Msg("no config file, using defaults")
			return Default().Resolve()
		}
		path = found
	}

	cfg, err := Load(fsys, path, workspace)
	if err != nil {
		return nil, errors.Errorf("loading %s: %w", path, err)
	}
	zerolog.Ctx(ctx).Debug().Str("path", path).Msg("loaded config")
	return cfg.Resolve()
}

// Resolve checks every field and reports all problems at once.
func (c *Config) Resolve() (*Settings, error) {
	var result *multierror.Error

	s := &Settings{
		SearchPaths: c.SearchPaths,
		Introspection: IntrospectionSettings{
			Timeout:      DefaultTimeout,
			StalePolicy:  introspect.StaleIgnore,
			Interpreters: map[lexer.Language][]string{},
		},
	}

	mod, err := editor.ParseKeyModifier(c.ModifierKey)
	if err != nil {
		result = multierror.Append(result, errors.Errorf("modifier_key: %w", err))
	}
	s.Modifier = mod

	s.DefaultLanguage = lexer.Python
	if c.DefaultLanguage != "" {
		lang, ok := lexer.ParseLanguage(c.DefaultLanguage)
		if !ok {
			result = multierror.Append(result, errors.Errorf("default_language: unsupported language %q", c.DefaultLanguage))
		}
		s.DefaultLanguage = lang
	}

	s.LogLevel = zerolog.InfoLevel
	if c.LogLevel != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
		if err != nil {
			result = multierror.Append(result, errors.Errorf("log_level: %w", err))
		}
		s.LogLevel = lvl
	}

	for i, p := range c.SearchPaths {
		if strings.TrimSpace(p) == "" {
			result = multierror.Append(result, errors.Errorf("search_paths[%d]: empty path", i))
		}
	}

	if in := c.Introspection; in != nil {
		s.Introspection.Enabled = in.Enabled
		s.Introspection.KernelCommand = in.KernelCommand

		if in.Timeout != "" {
			d, err := time.ParseDuration(in.Timeout)
			switch {
			case err != nil:
				result = multierror.Append(result, errors.Errorf("introspection.timeout: %w", err))
			case d <= 0:
				result = multierror.Append(result, errors.Errorf("introspection.timeout: must be positive, got %s", in.Timeout))
			default:
				s.Introspection.Timeout = d
			}
		}

		policy, err := introspect.ParseStalePolicy(in.StaleResponses)
		if err != nil {
			result = multierror.Append(result, errors.Errorf("introspection.stale_responses: %w", err))
		}
		s.Introspection.StalePolicy = policy

		for name, argv := range in.Interpreters {
			lang, ok := lexer.ParseLanguage(name)
			if !ok {
				result = multierror.Append(result, errors.Errorf("introspection.interpreters: unsupported language %q", name))
				continue
			}
			if len(argv) == 0 {
				result = multierror.Append(result, errors.Errorf("introspection.interpreters.%s: empty command", name))
				continue
			}
			s.Introspection.Interpreters[lang] = argv
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, errors.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

// Executor builds what the introspection settings ask for: nothing when
// disabled, a kernel bridge when a kernel command is set, fresh interpreter
// processes otherwise. The closer is only set for a kernel bridge.
func (s *Settings) Executor(ctx context.Context, dir string) (introspect.Executor, io.Closer, error) {
	in := s.Introspection
	if !in.Enabled {
		return nil, nil, nil
	}
	if len(in.KernelCommand) > 0 {
		k, err := introspect.StartKernel(ctx, dir, in.KernelCommand)
		if err != nil {
			return nil, nil, err
		}
		return k, k, nil
	}
	return introspect.NewProcessExecutor(dir, in.Interpreters), nil, nil
}
