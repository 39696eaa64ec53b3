package core

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	BinarySampleSize   = 8192 // Bytes to sample for text/binary detection
	BinaryThresholdPct = 10   // Max % non-printable chars for text values
)

// IsText reports whether data looks like text.
//
// Heuristic, in order:
//  1. NUL bytes present → binary
//  2. Invalid UTF-8 in the sample → binary
//  3. >10% non-printable control chars → binary
func IsText(data []byte) bool {
	if len(data) == 0 {
		return true
	}

	if bytes.IndexByte(data, 0) != -1 {
		return false
	}

	sample := data[:min(len(data), BinarySampleSize)]
	if !utf8.Valid(sample) {
		return false
	}

	nonPrintable := 0
	for _, b := range sample {
		if (b < 32 && b != '\t' && b != '\n' && b != '\r') || b == 127 {
			nonPrintable++
		}
	}

	return nonPrintable <= len(sample)*BinaryThresholdPct/100
}

// SameContent reports whether two values are identical, comparing SHA-256
// digests so timing does not depend on where they first differ
func SameContent(a, b []byte) bool {
	ha := sha256.Sum256(a)
	hb := sha256.Sum256(b)
	return bytes.Equal(ha[:], hb[:])
}

// UnifiedDiff renders a line diff from stored to local using go-diff.
// It returns "" when both are identical.
func UnifiedDiff(label string, stored, local []byte) string {
	if SameContent(stored, local) {
		return ""
	}

	if !IsText(stored) || !IsText(local) {
		return fmt.Sprintf("Binary value %s has changed\n", label)
	}

	dmp := diffmatchpatch.New()

	storedStr, localStr := string(stored), string(local)
	a, b, lines := dmp.DiffLinesToChars(storedStr, localStr)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	patches := dmp.PatchMake(storedStr, diffs)
	if len(patches) == 0 {
		return ""
	}

	var out strings.Builder
	fmt.Fprintf(&out, "--- stored/%s\n", label)
	fmt.Fprintf(&out, "+++ local/%s\n", label)
	out.WriteString(dmp.PatchToText(patches))
	return out.String()
}
