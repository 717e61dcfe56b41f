// pairlinkd runs a host and a companion dispatcher over an in-memory
// loopback pair, submitting a demo workload while periodically dropping the
// link to show buffering and replay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tmcke/pairlink/internal/dispatch"
	"github.com/tmcke/pairlink/internal/logging"
	"github.com/tmcke/pairlink/internal/transport"
)

func main() {
	logging.ConfigureRuntime()

	cfg := defaultDaemonConfig()
	if len(os.Args) > 1 {
		loaded, err := loadDaemonConfig(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "pairlinkd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "pairlinkd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg daemonConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hostLink, companionLink := transport.NewLoopbackPair()

	host, err := dispatch.New(hostLink, dispatch.Config{
		Role:            dispatch.RoleHost,
		PayloadMaxBytes: cfg.PayloadMaxBytes,
		InboundLimit:    cfg.InboundLimit,
		Logger:          log.Logger,
	})
	if err != nil {
		return err
	}
	companion, err := dispatch.New(companionLink, dispatch.Config{
		Role:            dispatch.RoleCompanion,
		PayloadMaxBytes: cfg.PayloadMaxBytes,
		InboundLimit:    cfg.InboundLimit,
		Logger:          log.Logger,
	})
	if err != nil {
		return err
	}

	hostLink.Bind(host)
	companionLink.Bind(companion)
	host.SetConsumer(logConsumer{log: log.With().Str("side", "host").Logger()})
	companion.SetConsumer(logConsumer{log: log.With().Str("side", "companion").Logger()})
	hostLink.Activate()
	companionLink.Activate()
	hostLink.SetReachable(true)

	log.Info().Dur("tick", cfg.Tick).Int("drop_link_every", cfg.DropLinkEvery).
		Msg("pairlinkd.run started")

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()
	linkUp := true
	seq := 0
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("pairlinkd.run shutdown")
			return nil
		case now := <-ticker.C:
			seq++
			if cfg.DropLinkEvery > 0 && seq%cfg.DropLinkEvery == 0 {
				linkUp = !linkUp
				hostLink.SetReachable(linkUp)
				log.Info().Bool("reachable", linkUp).Msg("pairlinkd.run link toggled")
			}
			if err := host.SubmitContext(map[string]any{"seq": seq, "at": now.Format(time.RFC3339)}, true); err != nil {
				log.Warn().Err(err).Msg("pairlinkd.run context rejected")
			}
			if err := companion.SubmitUserInfo(map[string]any{"seq": seq}); err != nil {
				log.Warn().Err(err).Msg("pairlinkd.run userinfo rejected")
			}
			if seq%3 == 0 {
				if err := host.SubmitMessage(map[string]any{"ping": seq}); err != nil {
					log.Warn().Err(err).Msg("pairlinkd.run message rejected")
				}
			}
			log.Debug().
				Int("host_pending", host.PendingCount()).
				Int("companion_pending", companion.PendingCount()).
				Msg("pairlinkd.run tick")
		}
	}
}

// logConsumer prints every inbound task; it stands in for an application
// consumer.
type logConsumer struct {
	log zerolog.Logger
}

func (c logConsumer) ReceiveContext(payload map[string]any) {
	c.log.Info().Interface("payload", payload).Msg("pairlinkd.consumer context")
}

func (c logConsumer) ReceiveUserInfo(payload map[string]any) {
	c.log.Info().Interface("payload", payload).Msg("pairlinkd.consumer userinfo")
}

func (c logConsumer) ReceiveFile(path string, metadata map[string]any) {
	c.log.Info().Str("path", path).Interface("metadata", metadata).Msg("pairlinkd.consumer file")
}

func (c logConsumer) ReceiveMessage(payload map[string]any) {
	c.log.Info().Interface("payload", payload).Msg("pairlinkd.consumer message")
}

func (c logConsumer) ReceiveBinary(data []byte) {
	c.log.Info().Int("bytes", len(data)).Msg("pairlinkd.consumer binary")
}
