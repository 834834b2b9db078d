package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// BusFeeder mirrors price updates published on the "prices" bus channel into
// a local sink. A monitor replica uses it instead of its own exchange
// connection.
type BusFeeder struct {
	bus    domain.SignalBus
	sink   PriceSink
	logger *slog.Logger

	state atomic.Value // domain.ConnectionState
}

// NewBusFeeder creates a BusFeeder.
func NewBusFeeder(bus domain.SignalBus, sink PriceSink, logger *slog.Logger) *BusFeeder {
	f := &BusFeeder{
		bus:    bus,
		sink:   sink,
		logger: logger.With(slog.String("component", "bus_feeder")),
	}
	f.state.Store(domain.ConnectionConnecting)
	return f
}

// State reports whether the bus subscription is live.
func (f *BusFeeder) State() domain.ConnectionState {
	return f.state.Load().(domain.ConnectionState)
}

// Run subscribes to the prices channel and applies every decodable update.
func (f *BusFeeder) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, domain.ChannelPrices)
	if err != nil {
		f.state.Store(domain.ConnectionDisconnected)
		return err
	}
	f.state.Store(domain.ConnectionConnected)
	f.logger.Info("bus feeder started")
	defer func() {
		f.state.Store(domain.ConnectionDisconnected)
		f.logger.Info("bus feeder stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			var u domain.PriceUpdate
			if err := json.Unmarshal(data, &u); err != nil {
				f.logger.Debug("bus feeder dropped message",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
				continue
			}
			f.sink.ApplyUpdate(u)
		}
	}
}
