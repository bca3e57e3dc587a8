//go:build !windows

package discord

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
)

// ///////////////////////////////////////////////
// Socket Discovery
// ///////////////////////////////////////////////

// ipcPrefixes are the socket names of the stable, Canary and PTB builds.
var ipcPrefixes = []string{"discord-ipc", "discordcanary-ipc", "discordptb-ipc"}

// sandboxDirs are the per-user runtime subdirectories of Snap and Flatpak
// installs, relative to /run/user/UID. Those sockets are always discord-ipc-N.
var sandboxDirs = []string{
	"snap.discord",
	"snap.discord-canary",
	"snap.discord-ptb",
	"app/com.discordapp.Discord",
	"app/com.discordapp.DiscordCanary",
	"app/com.discordapp.DiscordPTB",
	"app/dev.vencord.Vesktop",
}

// socketPaths lists every candidate socket in probe order: the runtime and
// temp directories from the environment, /tmp, sandboxed installs, then WSL
// relays.
func socketPaths() []string {
	var out []string
	slots := func(dir, prefix string) {
		for i := range maxIPCSlots {
			out = append(out, fmt.Sprintf("%s/%s-%d", dir, prefix, i))
		}
	}

	for _, env := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP", ""} {
		dir := "/tmp"
		if env != "" {
			if dir = os.Getenv(env); dir == "" {
				continue
			}
		}
		for _, p := range ipcPrefixes {
			slots(dir, p)
		}
	}

	runUser := "/run/user/" + strconv.Itoa(os.Getuid())
	for _, sd := range sandboxDirs {
		slots(runUser+"/"+sd, "discord-ipc")
	}
	return append(out, wslSocketPaths()...)
}

// dialDiscord returns a connection to the first socket that accepts.
func dialDiscord(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	for _, path := range socketPaths() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn, err := d.DialContext(ctx, "unix", path)
		if err == nil {
			return conn, nil
		}
	}

	if isWSL() {
		return nil, fmt.Errorf("%w: running under WSL, a socat + npiperelay.exe relay is required", ErrIPCNotAvailable)
	}
	return nil, ErrIPCNotAvailable
}
