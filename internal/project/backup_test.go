package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/piwi3910/SlabNest/internal/model"
)

func TestExportAndImportAllData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.json")

	cfg := model.DefaultAppConfig()
	cfg.DefaultSpacing = 3.0
	cfg.LogLevel = "debug"
	presets := model.NewPresetStore()
	presets.Add(model.NewPreset("Plywood", "", model.DefaultNestingConfig()))

	if err := ExportAllData(path, cfg, presets); err != nil {
		t.Fatalf("ExportAllData failed: %v", err)
	}

	backup, err := ImportAllData(path)
	if err != nil {
		t.Fatalf("ImportAllData failed: %v", err)
	}

	if backup.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %s", backup.Version)
	}
	if backup.CreatedAt == "" {
		t.Error("expected non-empty CreatedAt")
	}
	if backup.Config.DefaultSpacing != 3.0 {
		t.Errorf("expected DefaultSpacing=3.0, got %f", backup.Config.DefaultSpacing)
	}
	if backup.Config.LogLevel != "debug" {
		t.Errorf("expected LogLevel=debug, got %s", backup.Config.LogLevel)
	}
	if len(backup.Presets.Presets) != 1 || backup.Presets.Presets[0].Name != "Plywood" {
		t.Errorf("expected the Plywood preset, got %+v", backup.Presets.Presets)
	}
}

func TestImportAllDataMissingFile(t *testing.T) {
	_, err := ImportAllData(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestImportAllDataInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json}"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := ImportAllData(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestImportAllDataMissingVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.json")
	if err := os.WriteFile(path, []byte(`{"config": {}}`), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := ImportAllData(path)
	if err == nil {
		t.Fatal("expected error for missing version")
	}
}

func TestRestoreAllData(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "cfg", "config.json")
	presetPath := filepath.Join(dir, "cfg", "presets.json")

	backup := BackupData{Version: "1.0.0", Config: model.DefaultAppConfig(), Presets: model.NewPresetStore()}
	backup.Config.ListenAddr = ":9999"
	backup.Presets.Add(model.NewPreset("Acrylic", "", model.DefaultNestingConfig()))

	if err := RestoreAllData(backup, configPath, presetPath); err != nil {
		t.Fatalf("RestoreAllData failed: %v", err)
	}

	cfg, err := LoadAppConfig(configPath)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("expected :9999, got %s", cfg.ListenAddr)
	}
	presets, err := LoadPresets(presetPath)
	if err != nil {
		t.Fatalf("LoadPresets failed: %v", err)
	}
	if presets.FindByName("Acrylic") == nil {
		t.Error("expected restored Acrylic preset")
	}
}
