//go:build !linux

package conntrack

import (
	"fmt"
	"runtime"
)

// QuerySocketTable is unimplemented outside Linux: the netlink INET_DIAG and
// /proc/net sources this tracker is grounded on are both Linux-specific.
// Other platforms should inject a custom source via NewWithSource.
func QuerySocketTable() ([]SocketRow, error) {
	return nil, fmt.Errorf("conntrack: no socket-table source for GOOS=%s", runtime.GOOS)
}
