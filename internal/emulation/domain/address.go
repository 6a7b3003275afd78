package domain

import (
	"fmt"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// IPv4Addresses lists the global IPv4 addresses of ifname inside ns.
func IPv4Addresses(ns *Namespace, ifname string) ([]netip.Prefix, error) {
	h, err := handleFor(ns)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	link, err := h.LinkByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("find interface %s: %w", ifname, err)
	}
	addrs, err := h.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("list addresses of %s: %w", ifname, err)
	}

	var out []netip.Prefix
	for _, a := range addrs {
		if a.Scope != int(netlink.SCOPE_UNIVERSE) {
			continue
		}
		ip, ok := netip.AddrFromSlice(a.IP.To4())
		if !ok {
			continue
		}
		ones, _ := a.Mask.Size()
		out = append(out, netip.PrefixFrom(ip, ones))
	}
	return out, nil
}
