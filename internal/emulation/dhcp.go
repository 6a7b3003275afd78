package emulation

import "strings"

// DHCPClientArgs is the foreground dhclient invocation for a host
// interface.
func DHCPClientArgs(intf string) []string {
	return []string{"dhclient", "-v", "-d", intf}
}

// DHCPClientPattern matches a running DHCPClientArgs in pgrep -f and
// pkill -f. The bracket keeps it from matching a shell whose own command
// line carries the pattern.
func DHCPClientPattern(intf string) string {
	args := DHCPClientArgs(intf)
	return "[" + args[0][:1] + "]" + args[0][1:] + " " + strings.Join(args[1:], " ")
}
