package provision

import (
	"context"
	"fmt"
	"strings"

	"sdnlab/internal/emulation"
)

// hostShell wraps the commands the orchestrator runs on emulated hosts.
type hostShell struct {
	net  emulation.Network
	host string
	intf string
}

func (h hostShell) run(ctx context.Context, argv ...string) (emulation.CommandResult, error) {
	res, err := h.net.RunCommand(ctx, h.host, argv...)
	if err != nil {
		return res, fmt.Errorf("host %s: run %q: %w", h.host, strings.Join(argv, " "), err)
	}
	if !res.OK() {
		return res, fmt.Errorf("host %s: %q exited %d: %s",
			h.host, strings.Join(argv, " "), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res, nil
}

func (h hostShell) sh(ctx context.Context, script string) (emulation.CommandResult, error) {
	return h.run(ctx, "sh", "-c", script)
}

// releaseLease drops any lease the interface still holds.
func (h hostShell) releaseLease(ctx context.Context) error {
	_, err := h.run(ctx, "dhclient", "-v", "-d", "-r", h.intf)
	return err
}

// privateEtc copies /etc onto a tmpfs and moves it over /etc. It only
// makes sense in front of a command started with RunIsolated.
const privateEtc = `set -e
stage=$(mktemp -d /tmp/sdnlab-etc.XXXXXX)
mount -n -t tmpfs tmpfs "$stage"
cp -a /etc/. "$stage"/
mount -n --move "$stage" /etc
rmdir "$stage"
`

// startDHCPClient starts dhclient in the background, logging to /tmp.
// With private set, the client runs in its own mount namespace over a
// copy of /etc, so the resolv.conf it writes stays with the host.
func (h hostShell) startDHCPClient(ctx context.Context, private bool) error {
	script := fmt.Sprintf("%s 1> /tmp/dhclient-%s.log 2>&1 &",
		strings.Join(emulation.DHCPClientArgs(h.intf), " "), h.host)
	if !private {
		_, err := h.sh(ctx, script)
		return err
	}

	argv := []string{"sh", "-c", privateEtc + script}
	res, err := h.net.RunIsolated(ctx, h.host, argv...)
	if err != nil {
		return fmt.Errorf("host %s: start dhcp client: %w", h.host, err)
	}
	if !res.OK() {
		return fmt.Errorf("host %s: start dhcp client exited %d: %s",
			h.host, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (h hostShell) stopDHCPClient(ctx context.Context) error {
	// pkill exits 1 when nothing matched, which is fine here.
	_, err := h.sh(ctx, fmt.Sprintf("pkill -f '%s' || true", emulation.DHCPClientPattern(h.intf)))
	return err
}

// nameserver returns the nameserver lines of the resolv.conf dhclient
// sees. A private one is read through the client's /proc root.
func (h hostShell) nameserver(ctx context.Context, private bool) string {
	argv := []string{"grep", "nameserver", "/etc/resolv.conf"}
	if private {
		argv = []string{"sh", "-c", fmt.Sprintf(
			"pid=$(pgrep -o -f '%s') && grep nameserver /proc/$pid/root/etc/resolv.conf",
			emulation.DHCPClientPattern(h.intf))}
	}
	res, err := h.run(ctx, argv...)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}
