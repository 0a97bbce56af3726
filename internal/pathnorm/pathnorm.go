/*
SPDX-License-Identifier: GPL-3.0-or-later

Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com

This file is part of GoSight.

GoSight is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GoSight is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GoSight. If not, see https://www.gnu.org/licenses/.
*/

// Package pathnorm derives canonical UNS paths from Sparkplug identifiers
// and encodes those paths into escape-safe Canary tag ids. A Normalizer
// instance owns its own tag-collision counter (no package-level state),
// per the port's Design Notes.
package pathnorm

import (
	"errors"
	"fmt"
	"hash/crc32"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
)

var (
	ErrInvalidPath    = errors.New("pathnorm: invalid path")
	ErrInvalidTag     = errors.New("pathnorm: invalid tag")
	ErrInvalidSegment = errors.New("pathnorm: invalid segment")
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	underscoreRun = regexp.MustCompile(`_+`)
	hyphenRun     = regexp.MustCompile(`-+`)
)

// normalizeSegment applies steps (b)-(e) of the normalization algorithm to
// a single already-split raw segment. It returns "" if nothing survives.
func normalizeSegment(raw string) string {
	s := norm.NFC.String(raw)
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.Trim(s, " _-")

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == ' ', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s = b.String()
	s = underscoreRun.ReplaceAllString(s, "_")
	s = hyphenRun.ReplaceAllString(s, "-")
	return s
}

// splitAndNormalize splits raw on '/' and normalizes each piece, dropping
// any piece that normalizes to empty.
func splitAndNormalize(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "/") {
		if seg := normalizeSegment(part); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// NormalizeDevicePath builds the canonical "group/edge[/extra...]" UNS path
// for a device. group and edge must contribute at least one segment each.
func NormalizeDevicePath(group, edge string, extra ...string) (string, error) {
	groupSegs := splitAndNormalize(group)
	edgeSegs := splitAndNormalize(edge)
	if len(groupSegs) == 0 || len(edgeSegs) == 0 {
		return "", ErrInvalidPath
	}

	segs := append(append([]string{}, groupSegs...), edgeSegs...)
	for _, e := range extra {
		segs = append(segs, splitAndNormalize(e)...)
	}
	if len(segs) == 0 {
		return "", ErrInvalidPath
	}
	return strings.Join(segs, "/"), nil
}

// NormalizeMetricPath builds the canonical UNS path for a metric owned by
// (group, edge, device). device may be empty for node-scoped metrics.
// metricName may itself contain '/' and is split like any other segment.
func NormalizeMetricPath(group, edge, device, metricName string) (string, error) {
	groupSegs := splitAndNormalize(group)
	edgeSegs := splitAndNormalize(edge)
	if len(groupSegs) == 0 || len(edgeSegs) == 0 {
		return "", ErrInvalidPath
	}

	segs := append(append([]string{}, groupSegs...), edgeSegs...)
	if device != "" {
		segs = append(segs, splitAndNormalize(device)...)
	}
	metricSegs := splitAndNormalize(metricName)
	segs = append(segs, metricSegs...)

	if len(segs) == 0 || len(metricSegs) == 0 {
		return "", ErrInvalidPath
	}
	return strings.Join(segs, "/"), nil
}

// Normalizer encodes UNS paths into Canary tag ids and tracks, per
// instance, how many distinct source paths collided onto the same tag.
type Normalizer struct {
	mu         sync.Mutex
	seenTags   map[string]string // tag -> first source path that produced it
	collisions uint64
}

// NewNormalizer returns a Normalizer with an empty collision ledger.
func NewNormalizer() *Normalizer {
	return &Normalizer{seenTags: make(map[string]string)}
}

// Collisions returns the number of distinct source paths observed to
// collide onto an already-seen tag id.
func (n *Normalizer) Collisions() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.collisions
}

// EncodeTagID converts a UNS path into a dot-joined, escape-normalized
// Canary tag id, optionally appending a lowercase 8-hex CRC32 checksum.
func (n *Normalizer) EncodeTagID(unsPath string, withChecksum bool) (string, error) {
	if unsPath == "" {
		return "", ErrInvalidTag
	}

	rawSegs := strings.Split(unsPath, "/")
	segs := make([]string, 0, len(rawSegs))
	for _, raw := range rawSegs {
		seg := strings.TrimSpace(raw)
		if seg == "" {
			return "", ErrInvalidSegment
		}
		segs = append(segs, encodeSegment(seg))
	}

	tag := strings.Join(segs, ".")
	if withChecksum {
		sum := crc32.ChecksumIEEE([]byte(unsPath))
		tag = fmt.Sprintf("%s.%08x", tag, sum)
	}

	n.recordTag(tag, unsPath)
	return tag, nil
}

func (n *Normalizer) recordTag(tag, sourcePath string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if existing, ok := n.seenTags[tag]; ok {
		if existing != sourcePath {
			n.collisions++
			logging.Warn("pathnorm: tag id collision: %q and %q both encode to %q", existing, sourcePath, tag)
		}
		return
	}
	n.seenTags[tag] = sourcePath
}

// encodeSegment escapes one already-trimmed UNS path segment for tag-id use.
func encodeSegment(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(' ')
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			fmt.Fprintf(&b, "_x%04X", r)
		}
	}
	return b.String()
}
