// Package keys builds the Redis keys of the per-cell facility cache.
//
// A key reads ns:res:cell:version:checksum, e.g.
// fac:7:871ec8a8effffff:v1:3f9c2a01b4d7e655. The checksum covers the other
// segments so a truncated or hand-edited key never parses.
package keys

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

const (
	NSFacilities = "fac"
	// SchemaVersion is bumped when the cached JSON shape changes.
	SchemaVersion = "v1"
)

var ErrMalformedKey = errors.New("malformed cache key")

func CellKey(ns string, res int, cell string) string {
	ns = sanitizeNS(strings.TrimSpace(ns))
	return fmt.Sprintf("%s:%d:%s:%s:%016x", ns, res, cell, SchemaVersion, checksum(ns, res, cell))
}

// CellKeys returns one key per cell, in the same order.
func CellKeys(ns string, cells []spatial.CellID) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = CellKey(ns, c.Resolution(), c.String())
	}
	return out
}

// ParseCellKey reverses CellKey, verifying version and checksum.
func ParseCellKey(key string) (ns string, cell spatial.CellID, err error) {
	parts := strings.Split(key, ":")
	if len(parts) != 5 {
		return "", spatial.CellID{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	ns, rawRes, rawCell, ver, sum := parts[0], parts[1], parts[2], parts[3], parts[4]
	if ver != SchemaVersion {
		return "", spatial.CellID{}, fmt.Errorf("%w: version %q", ErrMalformedKey, ver)
	}
	res, err := strconv.Atoi(rawRes)
	if err != nil {
		return "", spatial.CellID{}, fmt.Errorf("%w: res %q", ErrMalformedKey, rawRes)
	}
	if fmt.Sprintf("%016x", checksum(ns, res, rawCell)) != sum {
		return "", spatial.CellID{}, fmt.Errorf("%w: checksum mismatch", ErrMalformedKey)
	}
	cell, err = spatial.ParseCellID(rawCell)
	if err != nil {
		return "", spatial.CellID{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if cell.Resolution() != res {
		return "", spatial.CellID{}, fmt.Errorf("%w: cell res %d != %d", ErrMalformedKey, cell.Resolution(), res)
	}
	return ns, cell, nil
}

func checksum(ns string, res int, cell string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(ns)
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(strconv.Itoa(res))
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(cell)
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(SchemaVersion)
	return d.Sum64()
}

// namespaces may only hold [A-Za-z0-9_-]; runs of anything else collapse to
// one '-'
func sanitizeNS(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := '-'
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
