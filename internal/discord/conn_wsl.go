//go:build linux

package discord

import (
	"os"
	"strconv"
	"strings"
)

// Under WSL2 Discord runs on the Windows host and its pipe is reachable
// only through a relay such as:
//
//	socat UNIX-LISTEN:$HOME/.discord-ipc-0,fork EXEC:"npiperelay.exe -ep -s //./pipe/discord-ipc-0"

// procVersion is read to detect WSL; tests point it elsewhere.
var procVersion = "/proc/version"

// isWSL reports whether the current process is running inside WSL.
func isWSL() bool {
	data, err := os.ReadFile(procVersion)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}

// wslSocketPaths returns relay socket paths under the user's home and the
// WSLg runtime directory. Nothing is added outside WSL.
func wslSocketPaths() []string {
	if !isWSL() {
		return nil
	}

	var prefixes []string
	if home, err := os.UserHomeDir(); err == nil {
		prefixes = append(prefixes, home+"/.discord-ipc-")
	}
	prefixes = append(prefixes, "/mnt/wslg/runtime-dir/discord-ipc-")

	var out []string
	for _, p := range prefixes {
		for i := range maxIPCSlots {
			out = append(out, p+strconv.Itoa(i))
		}
	}
	return out
}
