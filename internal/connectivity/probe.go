package connectivity

import (
	"context"
	"fmt"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// InterfaceProbe gilt als online, sobald eine aktive Netzwerkschnittstelle
// außer Loopback eine Adresse hat
type InterfaceProbe struct {
	list func(ctx context.Context) (psnet.InterfaceStatList, error)
}

// NewInterfaceProbe erstellt eine Probe über gopsutil
func NewInterfaceProbe() *InterfaceProbe {
	return &InterfaceProbe{list: psnet.InterfacesWithContext}
}

// Check implementiert Probe
func (p *InterfaceProbe) Check(ctx context.Context) (bool, error) {
	ifaces, err := p.list(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list network interfaces: %w", err)
	}
	return HasUsableInterface(ifaces), nil
}

// HasUsableInterface prüft eine Schnittstellenliste
func HasUsableInterface(ifaces psnet.InterfaceStatList) bool {
	for _, iface := range ifaces {
		up, loopback := false, false
		for _, flag := range iface.Flags {
			switch flag {
			case "up":
				up = true
			case "loopback":
				loopback = true
			}
		}
		if up && !loopback && len(iface.Addrs) > 0 {
			return true
		}
	}
	return false
}
