// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify maps free text to a lowercase URL-safe token: diacritics are
// folded, runs of anything outside [a-z0-9] collapse to one hyphen. It
// never fails. Blank input yields "untitled"; input with nothing
// foldable to ASCII yields "item-" plus a short digest of the input.
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn))), s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	gap := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if gap && b.Len() > 0 {
				b.WriteByte('-')
			}
			gap = false
			b.WriteRune(r)
			continue
		}
		gap = true
	}
	if b.Len() > 0 {
		return b.String()
	}
	if strings.TrimSpace(s) == "" {
		return "untitled"
	}
	sum := sha256.Sum256([]byte(s))
	return "item-" + hex.EncodeToString(sum[:4])
}

// slugifyPath slugifies each "/"-separated segment, dropping empty ones.
func slugifyPath(p string) string {
	var segs []string
	for _, seg := range strings.Split(p, "/") {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		segs = append(segs, Slugify(seg))
	}
	return strings.Join(segs, "/")
}

// slugifyAll slugifies non-blank values, dropping duplicates in order.
func slugifyAll(values []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		s := Slugify(v)
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// uniqueTrimmed trims values and drops blanks and duplicates in order.
func uniqueTrimmed(values []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
