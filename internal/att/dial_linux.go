//go:build linux

package att

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DialL2CAP connects to the ATT channel of the LE device at addr through the
// kernel Bluetooth stack. The returned connection supports read deadlines.
func DialL2CAP(addr Address, typ AddressType) (Conn, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, unix.BTPROTO_L2CAP)
	if err != nil {
		return nil, fmt.Errorf("att: create l2cap socket: %w", err)
	}

	// The local side binds to any adapter on the ATT channel with a public
	// address type; the kernel picks the controller.
	local := &unix.SockaddrL2{CID: CID, AddrType: uint8(AddressPublic)}
	if err := unix.Bind(fd, local); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("att: bind l2cap socket: %w", err)
	}

	remote := &unix.SockaddrL2{CID: CID, Addr: addr, AddrType: uint8(typ)}
	if err := unix.Connect(fd, remote); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("att: connect %s: %w", addr, err)
	}

	// A non-blocking descriptor lets the runtime poller enforce deadlines.
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("att: set non-blocking: %w", err)
	}
	return os.NewFile(uintptr(fd), "l2cap:"+addr.String()), nil
}
