package domain

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/vishvananda/netns"
)

// NetnsDir is where named network namespaces are mounted.
const NetnsDir = "/var/run/netns"

// Namespace is a named network namespace
type Namespace struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	CreatedAt string `json:"created_at"`
}

// CreateNamespace creates a named network namespace without moving the
// calling thread into it.
func CreateNamespace(name string) (*Namespace, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origNS, err := netns.Get()
	if err != nil {
		return nil, fmt.Errorf("get current netns: %w", err)
	}
	defer origNS.Close()

	// NewNamed switches the thread into the new namespace
	ns, err := netns.NewNamed(name)
	if err != nil {
		netns.Set(origNS)
		return nil, fmt.Errorf("create netns %s: %w", name, err)
	}
	ns.Close()

	if err := netns.Set(origNS); err != nil {
		return nil, fmt.Errorf("restore netns: %w", err)
	}

	return &Namespace{
		Name:      name,
		Path:      filepath.Join(NetnsDir, name),
		CreatedAt: time.Now().Format(time.RFC3339),
	}, nil
}

// Open returns a handle to the namespace. The caller closes it.
func (ns *Namespace) Open() (netns.NsHandle, error) {
	h, err := netns.GetFromPath(ns.Path)
	if err != nil {
		return netns.None(), fmt.Errorf("open netns %s: %w", ns.Name, err)
	}
	return h, nil
}

// Delete removes the network namespace
func (ns *Namespace) Delete() error {
	if err := netns.DeleteNamed(ns.Name); err != nil {
		return fmt.Errorf("delete netns %s: %w", ns.Name, err)
	}
	return nil
}
