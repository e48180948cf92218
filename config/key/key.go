// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package key names values in the config tree, e.g. server.port.
package key

import (
	"strings"
)

// Keyer is implemented by anything which names a config value.
type Keyer interface {
	Key() string
}

// Name is a single segment of a key, e.g. "port".
type Name string

// Key implements the [Keyer] interface.
func (n Name) Key() string {
	return string(n)
}

// Chain is the path from the config root down to a value.
type Chain []Keyer

// Key implements the [Keyer] interface. Segments are joined with '.'.
func (c Chain) Key() string {
	var sb strings.Builder
	for i, k := range c {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(k.Key())
	}
	return sb.String()
}

// Split cuts s at every sep into a Chain. Empty segments are dropped,
// so "server____port" and "server__port" name the same value.
func Split(s, sep string) Chain {
	var c Chain
	for _, part := range strings.Split(s, sep) {
		if part == "" {
			continue
		}
		c = append(c, Name(part))
	}
	return c
}
