package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDaemonConfigExample(t *testing.T) {
	cfg, err := loadDaemonConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Tick != 500*time.Millisecond {
		t.Fatalf("unexpected tick: %v", cfg.Tick)
	}
	if cfg.PayloadMaxBytes != 65536 {
		t.Fatalf("unexpected payload ceiling: %d", cfg.PayloadMaxBytes)
	}
	if cfg.InboundLimit != 0 {
		t.Fatalf("unexpected inbound limit: %d", cfg.InboundLimit)
	}
	if cfg.DropLinkEvery != 5 {
		t.Fatalf("unexpected drop interval: %d", cfg.DropLinkEvery)
	}
}

func TestLoadDaemonConfigPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("inbound_limit = 128\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadDaemonConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.InboundLimit != 128 {
		t.Fatalf("unexpected inbound limit: %d", cfg.InboundLimit)
	}
	if cfg.Tick != 2*time.Second {
		t.Fatalf("default tick lost: %v", cfg.Tick)
	}
	if cfg.DropLinkEvery != 5 {
		t.Fatalf("default drop interval lost: %d", cfg.DropLinkEvery)
	}
}

func TestLoadDaemonConfigRejectsBadTick(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("tick = \"nope\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadDaemonConfig(path); err == nil {
		t.Fatalf("expected error for bad tick")
	}
}
