package main

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"github.com/loracue/cuelink/pkg/config"
	"github.com/loracue/cuelink/pkg/crypto"
	"github.com/loracue/cuelink/pkg/link"
	"github.com/loracue/cuelink/pkg/packet"
	"github.com/loracue/cuelink/pkg/radio"
	"github.com/loracue/cuelink/pkg/registry"
)

// demoResult summarizes a demo run.
type demoResult struct {
	Delivered uint64
	Sender    link.Stats
	Receiver  link.Stats
}

// runDemo pairs the configured node with a receiver over an in-memory radio
// and sends the requested commands to it.
func runDemo(ctx context.Context, cfg *config.Config, secret []byte, opts Options) error {
	res, err := demo(ctx, cfg, secret, opts, radio.NetworkCondition{})
	if err != nil {
		return err
	}
	log.Printf("delivered %d of %d", res.Delivered, opts.Count)
	log.Printf("sender stats: %s", formatStats(res.Sender))
	log.Printf("receiver stats: %s", formatStats(res.Receiver))
	return nil
}

func demo(ctx context.Context, cfg *config.Config, secret []byte, opts Options, cond radio.NetworkCondition) (demoResult, error) {
	var res demoResult
	lf := cfg.LoggerFactory()

	receiverID := cfg.LocalID + 1
	if receiverID == 0 {
		receiverID = 1
	}
	receiverSecret, err := crypto.GenerateSecret(crypto.SecretSize256)
	if err != nil {
		return res, err
	}

	senderReg := registry.New(registry.Config{LoggerFactory: lf})
	receiverReg := registry.New(registry.Config{LoggerFactory: lf})
	if err := senderReg.Upsert(receiverID, "demo receiver", registry.Address{}, receiverSecret); err != nil {
		return res, err
	}
	if err := receiverReg.Upsert(cfg.LocalID, "demo sender", registry.Address{}, secret); err != nil {
		return res, err
	}

	senderRadio, receiverRadio := radio.NewPipePair(radio.DefaultPipeConfig())
	defer func() { _ = senderRadio.Pipe().Close() }()
	senderRadio.Pipe().SetCondition(cond)

	var delivered atomic.Uint64
	receiverCfg := messengerConfig(cfg, receiverSecret, receiverRadio, receiverReg, lf)
	receiverCfg.LocalID = receiverID
	receiverCfg.PeerID = cfg.LocalID
	receiverCfg.OnCommand = func(msg packet.Message) {
		delivered.Add(1)
		log.Printf("receiver: %s", describe(msg))
	}
	receiver, err := link.New(receiverCfg)
	if err != nil {
		return res, err
	}
	senderCfg := messengerConfig(cfg, secret, senderRadio, senderReg, lf)
	senderCfg.PeerID = receiverID
	sender, err := link.New(senderCfg)
	if err != nil {
		return res, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	errs := make(chan error, 2)
	go func() { errs <- receiver.Run(runCtx) }()
	go func() { errs <- sender.Run(runCtx) }()

	sendErr := sendCommands(ctx, sender, cfg, opts)

	cancel()
	runErr := errors.Join(<-errs, <-errs)

	res.Delivered = delivered.Load()
	res.Sender = sender.Stats()
	res.Receiver = receiver.Stats()
	return res, errors.Join(sendErr, runErr)
}
