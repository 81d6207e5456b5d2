package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/lowaak/ttwatch/internal/att"
	"github.com/lowaak/ttwatch/internal/config"
	"github.com/lowaak/ttwatch/internal/ttble"
	"github.com/lowaak/ttwatch/internal/ttusb"
	"github.com/lowaak/ttwatch/internal/watch"
)

var errNoAddress = errors.New("no watch address: pass --ble-address or pair a watch first")

func connect(ctx context.Context, cfg *config.Config, state *config.State, logger *log.Logger) (*watch.Device, error) {
	if cfg.Transport == "ble" {
		return connectBLE(ctx, cfg, state, logger)
	}
	return connectUSB(ctx, cfg, logger)
}

func connectUSB(ctx context.Context, cfg *config.Config, logger *log.Logger) (*watch.Device, error) {
	t, err := ttusb.OpenUSB(cfg.USB.Serial)
	if err != nil {
		return nil, err
	}
	c := ttusb.NewChannel(t, logger, ttusb.WithTimeout(cfg.USB.Timeout))
	c.Trace = cfg.Trace

	dev, err := watch.OpenUSB(ctx, c, t.Info.Serial, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	return dev, nil
}

// generation maps the configured generation; "auto" probes the watch.
func generation(ctx context.Context, setting string, client ttble.Client) (ttble.Generation, error) {
	switch setting {
	case "1":
		return ttble.GenerationV1, nil
	case "2":
		return ttble.GenerationV2, nil
	}
	return ttble.DetectGeneration(ctx, client)
}

func connectBLE(ctx context.Context, cfg *config.Config, state *config.State, logger *log.Logger) (*watch.Device, error) {
	address := cfg.BLE.Address
	if address == "" {
		address = state.LastWatch()
	}
	if address == "" {
		return nil, errNoAddress
	}
	addr, err := att.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	typ, err := att.ParseAddressType(cfg.BLE.AddressType)
	if err != nil {
		return nil, err
	}

	conn, err := att.DialL2CAP(addr, typ)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	client := att.NewClient(conn, logger, att.WithTimeout(cfg.BLE.Timeout))
	client.Trace = cfg.Trace

	dev, err := openSession(ctx, cfg, client, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	name, err := dev.WatchName(ctx)
	if err != nil {
		logger.Printf("ttwatch: watch name: %v", err)
	}
	if err := state.Remember(addr.String(), name); err != nil {
		logger.Printf("ttwatch: save state: %v", err)
	}
	return dev, nil
}

func openSession(ctx context.Context, cfg *config.Config, client *att.Client, logger *log.Logger) (*watch.Device, error) {
	g, err := generation(ctx, cfg.BLE.Generation, client)
	if err != nil {
		return nil, err
	}
	s, err := ttble.NewSession(client, g, logger)
	if err != nil {
		return nil, err
	}
	s.Trace = cfg.Trace
	if err := s.Authorize(ctx, cfg.BLE.Passcode, cfg.BLE.NewPairing); err != nil {
		return nil, err
	}
	return watch.OpenBLE(ctx, s, cfg.BLE.PacketDelay, client.Close, logger)
}

func listUSB(w io.Writer) error {
	infos, err := ttusb.ListUSB()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(w, "no watches attached")
		return nil
	}
	for _, i := range infos {
		fmt.Fprintf(w, "%03d:%03d  product 0x%04x  serial %s\n", i.Bus, i.Address, i.Product, i.Serial)
	}
	return nil
}
