package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/docutag/pinfetch/config"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()

	for _, name := range []string{"serve", "get"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Find(%q) = %v, %v", name, cmd, err)
		}
	}
	for _, flag := range []string{"config", "log-level", "log-format"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

func TestGetRequiresArgs(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"get"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "requires at least 1 arg") {
		t.Errorf("Execute() error = %v, want argument error", err)
	}
}

func TestSetupRequiresCredentials(t *testing.T) {
	t.Setenv("PINFETCH_API_ID", "")
	t.Setenv("PINFETCH_API_HASH", "")

	_, err := setup(&rootOptions{}, nil)
	if err == nil {
		t.Fatal("setup() error = nil, want missing credentials")
	}
}

func TestSetupBuildsComponents(t *testing.T) {
	t.Setenv("PINFETCH_API_ID", "123")
	t.Setenv("PINFETCH_API_HASH", "abc")
	workDir := t.TempDir()

	a, err := setup(&rootOptions{logLevel: "debug", logFormat: "text"}, func(c *config.Config) {
		c.Storage.WorkDir = workDir
	})
	if err != nil {
		t.Fatalf("setup() error = %v", err)
	}
	defer a.Close()

	if a.config.Log.Level != "debug" || a.config.Log.Format != "text" {
		t.Errorf("log config = %+v, want debug/text from flags", a.config.Log)
	}
	if a.pipeline == nil || a.resolver == nil || a.extractor == nil {
		t.Error("setup() left components nil")
	}
	if got := a.pipeline.Links("https://pin.it/abc"); len(got) != 1 {
		t.Errorf("Links() = %v, want one link", got)
	}
}
