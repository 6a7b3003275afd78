package config

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/vishvananda/netlink"
)

var ErrNoIPv4 = errors.New("interface has no IPv4 address")

// ControllerAddress returns addr with its last octet set to 1. Labs run on
// a host-only network where the controller sits on the .1 address.
func ControllerAddress(addr netip.Addr) (netip.Addr, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%s is not an IPv4 address", addr)
	}
	b := addr.As4()
	b[3] = 1
	return netip.AddrFrom4(b), nil
}

// InterfaceIPv4 returns the first IPv4 address configured on the named
// interface.
func InterfaceIPv4(name string) (netip.Addr, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("find interface %s: %w", name, err)
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("list addresses of %s: %w", name, err)
	}
	for _, a := range addrs {
		if ip, ok := netip.AddrFromSlice(a.IP.To4()); ok {
			return ip, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("%s: %w", name, ErrNoIPv4)
}

// ResolveController fills Controller.Host from DiscoverInterface when it
// is empty.
func (c *Config) ResolveController() error {
	if c.Controller.Host != "" {
		return nil
	}
	if c.Controller.DiscoverInterface == "" {
		return errors.New("controller host not set and no discovery interface configured")
	}
	local, err := InterfaceIPv4(c.Controller.DiscoverInterface)
	if err != nil {
		return fmt.Errorf("discover controller: %w", err)
	}
	ctrl, err := ControllerAddress(local)
	if err != nil {
		return fmt.Errorf("discover controller: %w", err)
	}
	c.Controller.Host = ctrl.String()
	return nil
}
