package domain

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// Veth is a virtual ethernet pair. A nil namespace means the end lives in
// the root namespace.
type Veth struct {
	Name       string     `json:"name"`
	PeerName   string     `json:"peer_name"`
	NamespaceA *Namespace `json:"namespace_a,omitempty"`
	NamespaceB *Namespace `json:"namespace_b,omitempty"`
}

// CreateVeth creates the pair in the root namespace and moves each end
// into its namespace, if any.
func CreateVeth(name string, nsA *Namespace, peer string, nsB *Namespace) (*Veth, error) {
	v := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		PeerName:  peer,
	}
	if err := netlink.LinkAdd(v); err != nil {
		return nil, fmt.Errorf("create veth %s<->%s: %w", name, peer, err)
	}

	veth := &Veth{Name: name, PeerName: peer}
	if nsA != nil {
		if err := moveToNamespace(name, nsA); err != nil {
			veth.Delete()
			return nil, err
		}
		veth.NamespaceA = nsA
	}
	if nsB != nil {
		if err := moveToNamespace(peer, nsB); err != nil {
			veth.Delete()
			return nil, err
		}
		veth.NamespaceB = nsB
	}
	return veth, nil
}

func moveToNamespace(ifname string, ns *Namespace) error {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return fmt.Errorf("find interface %s: %w", ifname, err)
	}
	h, err := ns.Open()
	if err != nil {
		return err
	}
	defer h.Close()

	if err := netlink.LinkSetNsFd(link, int(h)); err != nil {
		return fmt.Errorf("set netns for %s: %w", ifname, err)
	}
	return nil
}

// Up brings both ends up, and the loopback of every namespace involved.
func (v *Veth) Up() error {
	if err := linkUp(v.Name, v.NamespaceA); err != nil {
		return err
	}
	return linkUp(v.PeerName, v.NamespaceB)
}

func linkUp(ifname string, ns *Namespace) error {
	h, err := handleFor(ns)
	if err != nil {
		return err
	}
	defer h.Close()

	names := []string{ifname}
	if ns != nil {
		names = append(names, "lo")
	}
	for _, name := range names {
		link, err := h.LinkByName(name)
		if err != nil {
			return fmt.Errorf("find interface %s: %w", name, err)
		}
		if err := h.LinkSetUp(link); err != nil {
			return fmt.Errorf("set %s up: %w", name, err)
		}
	}
	return nil
}

// Delete removes the pair through whichever end still exists. Deleting a
// namespace already takes its ends with it.
func (v *Veth) Delete() error {
	for _, end := range []struct {
		name string
		ns   *Namespace
	}{{v.Name, v.NamespaceA}, {v.PeerName, v.NamespaceB}} {
		h, err := handleFor(end.ns)
		if err != nil {
			continue
		}
		link, err := h.LinkByName(end.name)
		if err != nil {
			h.Close()
			continue
		}
		err = h.LinkDel(link)
		h.Close()
		if err != nil {
			return fmt.Errorf("delete veth %s: %w", end.name, err)
		}
		return nil
	}
	return nil
}

// handleFor returns a netlink handle bound to ns, or to the current
// namespace when ns is nil.
func handleFor(ns *Namespace) (*netlink.Handle, error) {
	if ns == nil {
		return netlink.NewHandle()
	}
	nsh, err := ns.Open()
	if err != nil {
		return nil, err
	}
	defer nsh.Close()

	h, err := netlink.NewHandleAt(nsh)
	if err != nil {
		return nil, fmt.Errorf("netlink handle in %s: %w", ns.Name, err)
	}
	return h, nil
}
