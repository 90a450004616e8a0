package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-converse/device"
	"github.com/arloliu/go-converse/logger"
	"github.com/arloliu/go-converse/protodef"
	"github.com/arloliu/go-converse/publish"
	"github.com/arloliu/go-converse/stream"
)

// linkOpener opens the stream of a device.
type linkOpener func(ctx context.Context, d *protodef.Device, l logger.Logger) (*stream.Stream, error)

func openLink(ctx context.Context, d *protodef.Device, l logger.Logger) (*stream.Stream, error) {
	opts := []stream.Option{stream.WithLogger(l)}
	if d.BaudRate > 0 {
		opts = append(opts, stream.WithBaudRate(d.BaudRate))
	}

	return stream.Open(ctx, d.Link, opts...)
}

type app struct {
	cfg     *Config
	logger  logger.Logger
	poller  *device.Poller
	mqtt    *publish.MQTT
	streams []*stream.Stream
	targets []device.Target
}

// newApp builds one conversation session per device, opens its link and
// registers it with the poller.
func newApp(ctx context.Context, cfg *Config, defs *protodef.Definitions, l logger.Logger, open linkOpener) (*app, error) {
	a := &app{cfg: cfg, logger: l}

	pollerOpts := []device.PollerOption{
		device.WithPollInterval(cfg.PollInterval()),
		device.WithPollerLogger(l),
	}
	if cfg.MQTT.Enable {
		m, err := publish.NewMQTT(cfg.publisherConfig(), l)
		if err != nil {
			return nil, err
		}
		a.mqtt = m
		pollerOpts = append(pollerOpts, device.WithSnapshotHandler(m.PublishSnapshot))
	}

	poller, err := device.NewPoller(pollerOpts...)
	if err != nil {
		return nil, err
	}
	a.poller = poller

	cfg.applyDeviceOverrides(defs)
	if len(defs.Devices) == 0 {
		return nil, errors.New("no devices enabled")
	}

	for i := range defs.Devices {
		d := &defs.Devices[i]
		if err := a.addDevice(ctx, defs, d, open); err != nil {
			a.close()
			return nil, err
		}
	}

	return a, nil
}

func (a *app) addDevice(ctx context.Context, defs *protodef.Definitions, d *protodef.Device, open linkOpener) error {
	p, ok := defs.Protocol(d.Protocol)
	if !ok {
		return fmt.Errorf("device %q: unknown protocol %q", d.Name, d.Protocol)
	}

	c, err := p.NewConverse(a.logger.With("protocol", p.Name))
	if err != nil {
		return fmt.Errorf("device %q: %w", d.Name, err)
	}
	alg, err := d.NewAlgorithm(c, a.logger)
	if err != nil {
		return err
	}

	l := a.logger.With("device", d.Name)

	s, err := open(ctx, d, l)
	if err != nil {
		return fmt.Errorf("device %q: %w", d.Name, err)
	}
	a.streams = append(a.streams, s)
	c.SetDeviceStream(s)

	t := device.Target{Algorithm: alg}
	if err := a.poller.Add(t); err != nil {
		return err
	}
	a.targets = append(a.targets, t)
	l.Info("device ready", "link", d.Link, "protocol", p.Name, "blocks", len(alg.Blocks()))

	return nil
}

func (a *app) start(ctx context.Context, connectTimeout time.Duration) error {
	if a.mqtt != nil {
		if err := a.mqtt.Connect(connectTimeout); err != nil {
			return err
		}
	}

	return a.poller.Start(ctx)
}

func (a *app) close() {
	if a.poller != nil {
		a.poller.Stop()
	}
	for _, s := range a.streams {
		if err := s.Close(); err != nil {
			a.logger.Warn("close stream", "error", err)
		}
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
}
