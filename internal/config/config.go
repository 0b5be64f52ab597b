// internal/config/config.go
//
// This package handles configuration and the .storyloom directory structure.
// Every project that uses Storyloom gets a .storyloom/ folder created in its
// working directory: config, logs, the discussion transcript, and the final
// story output all live under it.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// StoryloomDir is the name of the directory we create in each project.
	StoryloomDir = ".storyloom"

	configFileName = "config.yaml"
)

const defaultConfigYAML = `# storyloom project configuration
version: 1

llm:
  provider: openai
  model: gpt-4o-mini
  # api_key: set here or via OPENAI_API_KEY
  # base_url: https://api.openai.com/v1

story:
  page_limit: 3
  words_per_page: 300
  max_turns: 100
  turn_timeout: 120s
  outline_min_iterations: 2
  outline_max_iterations: 3

# Lexical trigger phrases. The engine treats these as opaque configuration;
# extend the lists without touching code.
signals:
  completion:
    - "[STORY COMPLETE]"
    - "[END]"
    - "[FINISHED]"
    - "story is complete and satisfying"
  approval:
    - "I approve this story"
    - "I approve the story"
    - "story is approved"
  technical_pass:
    - "technical review passed"
  conflict:
    - "strongly disagree"
    - "major concern"
    - "fundamental issue"
    - "cannot accept"
    - "this won't work"
    - "completely wrong direction"
`

// Duration wraps time.Duration so YAML values like "120s" parse naturally.
type Duration time.Duration

// UnmarshalYAML parses Go duration syntax.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back in Go syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LLMSettings configures the model backing the agents.
type LLMSettings struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// StorySettings holds the run-level knobs for a story creation.
type StorySettings struct {
	PageLimit            int           `yaml:"page_limit"`
	WordsPerPage         int           `yaml:"words_per_page"`
	MaxTurns             int           `yaml:"max_turns"`
	TurnTimeout          Duration      `yaml:"turn_timeout"`
	OutlineMinIterations int           `yaml:"outline_min_iterations"`
	OutlineMaxIterations int           `yaml:"outline_max_iterations"`
}

// SignalSettings carries the phrase sets the signal parser matches against.
type SignalSettings struct {
	Completion    []string `yaml:"completion"`
	Approval      []string `yaml:"approval"`
	TechnicalPass []string `yaml:"technical_pass"`
	Conflict      []string `yaml:"conflict"`
}

// ProjectConfig models .storyloom/config.yaml.
type ProjectConfig struct {
	Version int            `yaml:"version"`
	LLM     LLMSettings    `yaml:"llm"`
	Story   StorySettings  `yaml:"story"`
	Signals SignalSettings `yaml:"signals"`
}

// Config holds the runtime configuration for Storyloom.
type Config struct {
	// ProjectDir is the directory where the user ran `storyloom` from.
	ProjectDir string

	// StoryloomProjectDir is ProjectDir/.storyloom.
	StoryloomProjectDir string

	Project ProjectConfig
}

// InitStoryloomDir creates the .storyloom directory structure in the given
// project directory and seeds a default config.yaml when none exists.
//
// Structure created:
// .storyloom/
//
//	config.yaml
//	logs/
//	discussions/
//	output/
func InitStoryloomDir(projectDir string) error {
	root := filepath.Join(projectDir, StoryloomDir)
	for _, sub := range []string{"", "logs", "discussions", "output"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", filepath.Join(root, sub), err)
		}
	}
	configPath := filepath.Join(root, configFileName)
	if _, err := os.Stat(configPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: stat %s: %w", configPath, err)
		}
		if err := os.WriteFile(configPath, []byte(defaultConfigYAML), 0o644); err != nil {
			return fmt.Errorf("config: seed default config: %w", err)
		}
	}
	return nil
}

// Load reads the project configuration, applying defaults for anything the
// file leaves unset.
func Load(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:          projectDir,
		StoryloomProjectDir: filepath.Join(projectDir, StoryloomDir),
		Project:             Defaults(),
	}
	path := filepath.Join(cfg.StoryloomProjectDir, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var project ProjectConfig
	if err := yaml.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Project = merged(Defaults(), project)
	if err := cfg.Project.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the built-in project configuration.
func Defaults() ProjectConfig {
	var project ProjectConfig
	// The embedded YAML is the single source of default values.
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &project); err != nil {
		panic(fmt.Sprintf("config: default yaml invalid: %v", err))
	}
	return project
}

// Validate enforces baseline requirements on a loaded configuration.
func (p ProjectConfig) Validate() error {
	if p.Story.PageLimit <= 0 {
		return fmt.Errorf("config: story.page_limit must be positive, got %d", p.Story.PageLimit)
	}
	if p.Story.WordsPerPage <= 0 {
		return fmt.Errorf("config: story.words_per_page must be positive, got %d", p.Story.WordsPerPage)
	}
	if p.Story.MaxTurns <= 0 {
		return fmt.Errorf("config: story.max_turns must be positive, got %d", p.Story.MaxTurns)
	}
	if p.Story.TurnTimeout <= 0 {
		return fmt.Errorf("config: story.turn_timeout must be positive, got %s", p.Story.TurnTimeout.Std())
	}
	if p.Story.OutlineMinIterations < 1 {
		return fmt.Errorf("config: story.outline_min_iterations must be >= 1")
	}
	if p.Story.OutlineMaxIterations < p.Story.OutlineMinIterations {
		return fmt.Errorf("config: story.outline_max_iterations must be >= outline_min_iterations")
	}
	return nil
}

// DiscussionPath returns the transcript file for the current project.
func (c *Config) DiscussionPath() string {
	return filepath.Join(c.StoryloomProjectDir, "discussions", "story_discussion.md")
}

// OutputPath returns the final story artifact for the current project.
func (c *Config) OutputPath() string {
	return filepath.Join(c.StoryloomProjectDir, "output", "story_output.md")
}

// merged overlays file values onto the defaults. Zero values in the file keep
// the default; explicitly configured lists replace the default lists wholesale.
func merged(base, file ProjectConfig) ProjectConfig {
	out := base
	if file.Version != 0 {
		out.Version = file.Version
	}
	if file.LLM.Provider != "" {
		out.LLM.Provider = file.LLM.Provider
	}
	if file.LLM.Model != "" {
		out.LLM.Model = file.LLM.Model
	}
	if file.LLM.APIKey != "" {
		out.LLM.APIKey = file.LLM.APIKey
	}
	if file.LLM.BaseURL != "" {
		out.LLM.BaseURL = file.LLM.BaseURL
	}
	if file.Story.PageLimit != 0 {
		out.Story.PageLimit = file.Story.PageLimit
	}
	if file.Story.WordsPerPage != 0 {
		out.Story.WordsPerPage = file.Story.WordsPerPage
	}
	if file.Story.MaxTurns != 0 {
		out.Story.MaxTurns = file.Story.MaxTurns
	}
	if file.Story.TurnTimeout != 0 {
		out.Story.TurnTimeout = file.Story.TurnTimeout
	}
	if file.Story.OutlineMinIterations != 0 {
		out.Story.OutlineMinIterations = file.Story.OutlineMinIterations
	}
	if file.Story.OutlineMaxIterations != 0 {
		out.Story.OutlineMaxIterations = file.Story.OutlineMaxIterations
	}
	if len(file.Signals.Completion) > 0 {
		out.Signals.Completion = file.Signals.Completion
	}
	if len(file.Signals.Approval) > 0 {
		out.Signals.Approval = file.Signals.Approval
	}
	if len(file.Signals.TechnicalPass) > 0 {
		out.Signals.TechnicalPass = file.Signals.TechnicalPass
	}
	if len(file.Signals.Conflict) > 0 {
		out.Signals.Conflict = file.Signals.Conflict
	}
	return out
}
