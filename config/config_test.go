package config

import (
	"os"
	"path/filepath"
	"testing"

	"quill/hotkey"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Provider != "auto" || c.Format != "flac" || c.Hotkey.Mode != "hybrid" {
		t.Errorf("defaults not applied: %+v", c)
	}
	if c.Binding() != hotkey.DefaultBinding {
		t.Errorf("binding = %+v", c.Binding())
	}
	if c.History.Max != 50 || c.History.Path == "" {
		t.Errorf("history defaults: %+v", c.History)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`provider: deepgram
format: wav
hotkey:
  binding: Ctrl+Alt+D
  mode: ptt
history:
  max: 10
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Provider != "deepgram" || c.Format != "wav" {
		t.Errorf("loaded %+v", c)
	}
	want := hotkey.Binding{Ctrl: true, Alt: true, Key: "d"}
	if c.Binding() != want {
		t.Errorf("binding = %+v", c.Binding())
	}
	if c.Hotkey.Mode != "ptt" || c.History.Max != 10 {
		t.Errorf("loaded %+v", c)
	}
	// Unset keys keep their defaults
	if c.Hotkey.LongPressMs != 600 || c.Injection.Method != "keystroke" {
		t.Errorf("defaults lost: %+v", c)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("QUILL_PROVIDER", "groq")
	t.Setenv("QUILL_HOTKEY_BINDING", "Super+Space")
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Provider != "groq" {
		t.Errorf("provider = %q", c.Provider)
	}
	want := hotkey.Binding{Super: true, Key: "space"}
	if c.Binding() != want {
		t.Errorf("binding = %+v", c.Binding())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []string{
		"provider: siri\n",
		"format: mp3\n",
		"hotkey:\n  mode: morse\n",
		"hotkey:\n  binding: F9\n", // no modifier
		"injection:\n  method: telepathy\n",
		"history:\n  max: 0\n",
		"idle:\n  warn_seconds: 40\n  stop_seconds: 30\n",
	}
	for _, data := range cases {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("config %q: expected validation error", data)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	c := Default()
	c.Provider = "openai"
	c.Hotkey.Binding = "Ctrl+Shift+F5"
	c.History.Path = filepath.Join(t.TempDir(), "history.json")
	if err := Save(c, path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Provider != "openai" || got.Hotkey.Binding != "Ctrl+Shift+F5" {
		t.Errorf("round trip: %+v", got)
	}
}
