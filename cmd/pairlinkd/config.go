package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// daemonConfig controls the demo pairing loop.
type daemonConfig struct {
	Tick            time.Duration
	PayloadMaxBytes int
	InboundLimit    int
	DropLinkEvery   int
}

type fileConfig struct {
	Tick            string `toml:"tick"`
	PayloadMaxBytes int    `toml:"payload_max_bytes"`
	InboundLimit    int    `toml:"inbound_limit"`
	DropLinkEvery   int    `toml:"drop_link_every"`
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		Tick:            2 * time.Second,
		PayloadMaxBytes: 64 << 10,
		InboundLimit:    0,
		DropLinkEvery:   5,
	}
}

func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("load pairlinkd config: %w", err)
	}

	if meta.IsDefined("tick") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Tick))
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse tick: %w", err)
		}
		if d <= 0 {
			return daemonConfig{}, fmt.Errorf("parse tick: must be positive, got %v", d)
		}
		cfg.Tick = d
	}

	if meta.IsDefined("payload_max_bytes") {
		cfg.PayloadMaxBytes = raw.PayloadMaxBytes
	}

	if meta.IsDefined("inbound_limit") {
		cfg.InboundLimit = raw.InboundLimit
	}

	if meta.IsDefined("drop_link_every") {
		cfg.DropLinkEvery = raw.DropLinkEvery
	}

	return cfg, nil
}
