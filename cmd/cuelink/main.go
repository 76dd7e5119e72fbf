// cuelink runs one node of a presentation-remote radio link.
//
// Usage:
//
//	cuelink [options]
//
// Modes:
//
//	receiver  run the link and log every inbound command (default)
//	sender    send -count commands to the paired receiver
//	pair      store a peer from a JSON pairing request
//	unpair    remove a peer by device ID
//	list      print the paired peers
//	demo      run a sender and a receiver over an in-memory radio
//
// Example:
//
//	cuelink -config node.yaml -mode pair -request '{"name":"Clicker","mac":"aa:bb:cc:dd:12:34","aes_key":"..."}'
//	cuelink -config node.yaml -mode sender -command next
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loracue/cuelink/pkg/config"
	"github.com/loracue/cuelink/pkg/link"
	"github.com/loracue/cuelink/pkg/packet"
	"github.com/loracue/cuelink/pkg/pairing"
)

func main() {
	opts, err := ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("cuelink: %v", err)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		log.Fatalf("cuelink: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil {
		log.Fatalf("cuelink: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, opts Options) error {
	lf := cfg.LoggerFactory()

	secret, err := cfg.Secret()
	if err != nil {
		return err
	}

	if opts.Mode == modeDemo {
		return runDemo(ctx, cfg, secret, opts)
	}

	reg, regCloser, err := openRegistry(cfg, lf)
	if err != nil {
		return err
	}
	defer func() { _ = closeAll(regCloser) }()

	switch opts.Mode {
	case modePair:
		req, err := pairing.ParseRequest([]byte(opts.Request))
		if err != nil {
			return err
		}
		if err := pairing.Apply(reg, req); err != nil {
			return err
		}
		log.Printf("paired %#04x (%s) %s", req.DeviceID, req.Name, req.Address)
		return nil

	case modeUnpair:
		if err := reg.Remove(opts.Device); err != nil {
			return err
		}
		log.Printf("removed %#04x", opts.Device)
		return nil

	case modeList:
		for _, rec := range reg.List() {
			fmt.Printf("%#04x  %-31s  %s\n", rec.DeviceID, rec.Name, rec.Address)
		}
		return nil
	}

	t, err := openTransport(cfg, lf)
	if err != nil {
		return err
	}
	defer func() { _ = t.Close() }()

	mcfg := messengerConfig(cfg, secret, t, reg, lf)
	mcfg.OnCommand = func(msg packet.Message) {
		log.Printf("command: %s", describe(msg))
	}
	mcfg.OnStateChange = func(from, to link.Quality) {
		log.Printf("link quality %s -> %s", from, to)
	}
	m, err := link.New(mcfg)
	if err != nil {
		return err
	}

	if opts.Mode == modeReceiver {
		log.Printf("receiver %#04x listening, %d paired devices", cfg.LocalID, reg.Count())
		err := m.Run(ctx)
		log.Printf("stats: %s", formatStats(m.Stats()))
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(runCtx) }()

	sendErr := sendCommands(ctx, m, cfg, opts)

	cancel()
	if err := <-runErr; err != nil {
		return errors.Join(sendErr, err)
	}
	log.Printf("stats: %s", formatStats(m.Stats()))
	return sendErr
}

// sendCommands sends opts.Count commands, one every opts.Interval.
func sendCommands(ctx context.Context, m *link.Messenger, cfg *config.Config, opts Options) error {
	cmd, payload, err := commandPayload(opts)
	if err != nil {
		return err
	}

	var failed int
	for i := 0; i < opts.Count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.Interval):
			}
		}

		if opts.Reliable {
			err = m.SendReliable(ctx, cmd, payload, cfg.Link.AckTimeout, cfg.Link.MaxRetries)
		} else {
			err = m.SendFireAndForget(ctx, cmd, payload)
		}
		switch {
		case err == nil:
			log.Printf("%s %d/%d sent", cmd, i+1, opts.Count)
		case errors.Is(err, link.ErrDeliveryTimedOut):
			failed++
			log.Printf("%s %d/%d not acknowledged", cmd, i+1, opts.Count)
		default:
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d commands unacknowledged", link.ErrDeliveryTimedOut, failed, opts.Count)
	}
	return nil
}
