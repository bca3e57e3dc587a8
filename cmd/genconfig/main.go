// Command genconfig regenerates config.default.toml from
// config.ExampleConfig, annotated with config.ConfigDocs.
//
// go generate runs it from internal/config, so the default output path is
// relative to that directory.
package main

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/jukeboxrpc/internal/atomicfile"
	"tools.zach/dev/jukeboxrpc/internal/config"
)

const defaultOut = "../../config.default.toml"

const banner = "# ///////////////////////////////////////////////"

func main() {
	out := defaultOut
	if len(os.Args) > 1 {
		out = os.Args[1]
	}
	text, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "genconfig:", err)
		os.Exit(1)
	}
	if err := atomicfile.Write(out, []byte(text), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "genconfig:", err)
		os.Exit(1)
	}
	fmt.Println("wrote", out)
}

// render encodes cfg as TOML and decorates it with docs: a comment above
// every documented key or table, alternatives below the value, and
// commented-out entries for documented keys the encoder left out.
func render(cfg *config.Config, docs map[string]config.FieldDoc) (string, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return "", fmt.Errorf("encode example config: %w", err)
	}

	d := &docWriter{docs: docs, seen: map[string]bool{}}
	d.lines = []string{banner, "# Jukebox RPC Configuration", banner, ""}
	for _, line := range strings.Split(raw.String(), "\n") {
		d.line(strings.TrimSpace(line))
	}
	d.closeTable()

	return strings.TrimRight(strings.Join(d.lines, "\n"), "\n") + "\n", nil
}

// docWriter accumulates the annotated output while walking encoder lines.
type docWriter struct {
	docs  map[string]config.FieldDoc
	lines []string
	// table is the dotted name of the current [table], "" at the root.
	table string
	// seen holds every documented path already written.
	seen map[string]bool
}

func (d *docWriter) line(l string) {
	switch {
	case l == "":
	case strings.HasPrefix(l, "[") && !strings.HasPrefix(l, "[["):
		d.closeTable()
		d.table = strings.Trim(l, "[] ")
		d.lines = append(d.lines, "", "# ///// "+title(d.table)+" /////", "")
		d.comment(d.docs[d.table].Comment)
		d.lines = append(d.lines, l)
	case strings.HasPrefix(l, "#"):
		d.lines = append(d.lines, l)
	default:
		key, _, ok := strings.Cut(l, "=")
		if !ok {
			d.lines = append(d.lines, l)
			return
		}
		path := d.path(strings.TrimSpace(key))
		d.seen[path] = true
		doc := d.docs[path]
		d.comment(doc.Comment)
		d.lines = append(d.lines, l)
		d.alternatives(doc.Alternatives)
	}
}

// closeTable writes commented entries for documented keys of the current
// table that the encoder omitted, in key order.
func (d *docWriter) closeTable() {
	if d.table == "" {
		return
	}
	prefix := d.table + "."
	var missing []string
	for path := range d.docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if ok && !strings.Contains(rest, ".") && !d.seen[path] {
			missing = append(missing, path)
		}
	}
	slices.Sort(missing)
	for _, path := range missing {
		d.lines = append(d.lines, "")
		d.comment(d.docs[path].Comment)
		d.alternatives(d.docs[path].Alternatives)
		d.seen[path] = true
	}
}

func (d *docWriter) path(key string) string {
	if d.table == "" {
		return key
	}
	return d.table + "." + key
}

func (d *docWriter) comment(text string) {
	if text == "" {
		return
	}
	for _, l := range strings.Split(text, "\n") {
		d.lines = append(d.lines, strings.TrimRight("# "+l, " "))
	}
}

func (d *docWriter) alternatives(alts []string) {
	for _, a := range alts {
		d.lines = append(d.lines, "# "+a)
	}
}

// title capitalizes the last segment of a dotted table name.
func title(table string) string {
	last := table[strings.LastIndexByte(table, '.')+1:]
	if last == "" {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
