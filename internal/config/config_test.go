package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestInitStoryloomDirCreatesStructure(t *testing.T) {
	dir := t.TempDir()
	if err := InitStoryloomDir(dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, sub := range []string{"logs", "discussions", "output"} {
		path := filepath.Join(dir, StoryloomDir, sub)
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", path)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, StoryloomDir, configFileName)); err != nil {
		t.Fatalf("config.yaml not seeded: %v", err)
	}
}

func TestInitStoryloomDirKeepsExistingConfig(t *testing.T) {
	dir := t.TempDir()
	if err := InitStoryloomDir(dir); err != nil {
		t.Fatalf("first init: %v", err)
	}
	path := filepath.Join(dir, StoryloomDir, configFileName)
	custom := []byte("version: 1\nstory:\n  page_limit: 7\n")
	if err := os.WriteFile(path, custom, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}
	if err := InitStoryloomDir(dir); err != nil {
		t.Fatalf("second init: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(data) != string(custom) {
		t.Fatalf("existing config was overwritten")
	}
}

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project.Story.PageLimit != 3 {
		t.Fatalf("page_limit = %d, want 3", cfg.Project.Story.PageLimit)
	}
	if cfg.Project.Story.WordsPerPage != 300 {
		t.Fatalf("words_per_page = %d, want 300", cfg.Project.Story.WordsPerPage)
	}
	if cfg.Project.Story.TurnTimeout.Std() != 120*time.Second {
		t.Fatalf("turn_timeout = %s, want 120s", cfg.Project.Story.TurnTimeout.Std())
	}
	if len(cfg.Project.Signals.Completion) == 0 {
		t.Fatalf("default completion signals missing")
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := InitStoryloomDir(dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	custom := `version: 1
story:
  page_limit: 5
signals:
  conflict:
    - "absolutely not"
`
	path := filepath.Join(dir, StoryloomDir, configFileName)
	if err := os.WriteFile(path, []byte(custom), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project.Story.PageLimit != 5 {
		t.Fatalf("page_limit = %d, want 5", cfg.Project.Story.PageLimit)
	}
	// Untouched sections keep their defaults.
	if cfg.Project.Story.MaxTurns != 100 {
		t.Fatalf("max_turns = %d, want default 100", cfg.Project.Story.MaxTurns)
	}
	if len(cfg.Project.Signals.Conflict) != 1 || cfg.Project.Signals.Conflict[0] != "absolutely not" {
		t.Fatalf("conflict signals = %v, want override", cfg.Project.Signals.Conflict)
	}
	if len(cfg.Project.Signals.Approval) == 0 {
		t.Fatalf("approval defaults should survive a partial signals override")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ProjectConfig)
	}{
		{"zero page limit", func(p *ProjectConfig) { p.Story.PageLimit = 0 }},
		{"negative words per page", func(p *ProjectConfig) { p.Story.WordsPerPage = -1 }},
		{"zero max turns", func(p *ProjectConfig) { p.Story.MaxTurns = 0 }},
		{"zero timeout", func(p *ProjectConfig) { p.Story.TurnTimeout = 0 }},
		{"cap below minimum", func(p *ProjectConfig) {
			p.Story.OutlineMinIterations = 3
			p.Story.OutlineMaxIterations = 2
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			project := Defaults()
			tc.mutate(&project)
			if err := project.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
