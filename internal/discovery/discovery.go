// Package discovery advertises this server's presence on the LAN as
// `_boww._tcp`. No repo in the reference pack imports an mDNS/Avahi/Bonjour
// client, so this is implemented directly on net — a periodic UDP broadcast
// beacon standing in for a full DNS-SD responder, documented as the one
// stdlib-by-necessity component rather than stdlib-by-default.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/boww-net/boww-server/internal/logging"
)

const (
	beaconPort     = 9003
	beaconInterval = 5 * time.Second
)

// Advertisement is the payload broadcast on every beacon tick.
type Advertisement struct {
	Service      string `json:"service"`
	InstanceName string `json:"instance_name"`
	Port         int    `json:"port"`
}

// Advertiser periodically broadcasts an Advertisement so clients on the LAN
// can find this server without hardcoding its address.
type Advertiser struct {
	instanceName string
	port         int
	logger       logging.Logger
}

// New builds an Advertiser for the given service instance name and the
// server's listening port.
func New(instanceName string, port int, logger logging.Logger) *Advertiser {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Advertiser{instanceName: instanceName, port: port, logger: logger}
}

// Run broadcasts the advertisement every beaconInterval until ctx is
// cancelled.
func (a *Advertiser) Run(ctx context.Context) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return fmt.Errorf("discovery: open broadcast socket: %w", err)
	}
	defer conn.Close()

	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: beaconPort}

	payload, err := json.Marshal(Advertisement{
		Service:      "_boww._tcp",
		InstanceName: a.instanceName,
		Port:         a.port,
	})
	if err != nil {
		return fmt.Errorf("discovery: marshal advertisement: %w", err)
	}

	ticker := time.NewTicker(beaconInterval)
	defer ticker.Stop()

	if _, err := conn.WriteToUDP(payload, broadcastAddr); err != nil {
		a.logger.Warn("discovery: initial beacon failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := conn.WriteToUDP(payload, broadcastAddr); err != nil {
				a.logger.Warn("discovery: beacon failed", "error", err)
			}
		}
	}
}
