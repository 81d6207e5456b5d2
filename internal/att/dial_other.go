//go:build !linux

package att

import (
	"errors"
	"runtime"
)

// DialL2CAP is only available on linux.
func DialL2CAP(addr Address, typ AddressType) (Conn, error) {
	return nil, errors.New("att: l2cap sockets are not supported on " + runtime.GOOS)
}
