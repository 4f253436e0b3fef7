package server

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/graymedia/mediaserver/internal/upnp"
)

// advertiser re-issues alive advertisements on a fixed interval. It only
// reads values captured at construction and never touches the dispatcher.
type advertiser struct {
	transport Transport
	handle    upnp.DeviceHandle
	interval  time.Duration
	clock     clock.Clock
	logger    Logger
	observer  LifecycleObserver

	ticker *clock.Ticker

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newAdvertiser(transport Transport, handle upnp.DeviceHandle, interval time.Duration, clk clock.Clock, logger Logger, observer LifecycleObserver) *advertiser {
	return &advertiser{
		transport: transport,
		handle:    handle,
		interval:  interval,
		clock:     clk,
		logger:    logger,
		observer:  observer,
		done:      make(chan struct{}),
	}
}

// start sends the first advertisement synchronously, then schedules the
// rest. The ticker exists before start returns.
func (a *advertiser) start() {
	a.ticker = a.clock.Ticker(a.interval)
	a.advertise() //nolint:errcheck // logged and observed

	a.wg.Add(1)
	go a.loop()
}

// stop halts the loop and waits for it. No advertisement is sent after
// stop returns. Safe to call multiple times.
func (a *advertiser) stop() {
	a.stopOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
	})
}

func (a *advertiser) loop() {
	defer a.wg.Done()
	defer a.ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-a.ticker.C:
			select {
			case <-a.done:
				return
			default:
			}
			a.advertise() //nolint:errcheck // logged and observed
		}
	}
}

func (a *advertiser) advertise() error {
	err := a.transport.SendAdvertisement(a.handle, a.interval)
	if err != nil {
		a.logger.Warn("alive advertisement failed", "handle", a.handle, "error", err)
	}
	if a.observer != nil {
		a.observer.ObserveAdvertisement(err)
	}
	return err
}
