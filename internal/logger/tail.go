package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// tailChunk is how much ReadTail reads per step from the end of the file.
const tailChunk = 8 << 10

// ReadTail returns the last n lines of the file at path, oldest first,
// without a trailing newline. It reads backwards so large rotated logs cost
// only the bytes shown.
func ReadTail(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if n <= 0 {
		return "", nil
	}

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat log file: %w", err)
	}

	// n lines need n+1 newlines unless the start of the file is reached.
	var data []byte
	for off := info.Size(); off > 0 && bytes.Count(data, []byte{'\n'}) <= n; {
		step := min(tailChunk, off)
		off -= step
		buf := make([]byte, int(step), int(step)+len(data))
		if _, err := f.ReadAt(buf, off); err != nil && err != io.EOF {
			return "", fmt.Errorf("reading log file: %w", err)
		}
		data = append(buf, data...)
	}

	text := strings.TrimRight(string(data), "\r\n")
	if text == "" {
		return "", nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return strings.Join(lines, "\n"), nil
}
