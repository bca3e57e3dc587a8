//go:build windows

package discord

import (
	"context"
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// dialDiscord connects to the first named pipe \\.\pipe\discord-ipc-N that
// accepts. Canary and PTB builds listen on the same pipe names on Windows.
func dialDiscord(ctx context.Context) (net.Conn, error) {
	var last error
	for slot := range maxIPCSlots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn, err := winio.DialPipeContext(ctx, fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, slot))
		if err == nil {
			return conn, nil
		}
		last = err
	}
	return nil, fmt.Errorf("%w: %v", ErrIPCNotAvailable, last)
}
