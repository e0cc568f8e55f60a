// Package textutil holds rune-safe string helpers shared by the pipeline.
package textutil

import "unicode/utf8"

// Ellipsis marks text cut by Preview.
const Ellipsis = "..."

// Head returns the first n characters of s. It never splits a rune.
func Head(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Preview is Head with an ellipsis appended when s was longer than n.
func Preview(s string, n int) string {
	h := Head(s, n)
	if len(h) < len(s) {
		return h + Ellipsis
	}
	return h
}
