// Package sanitize scrubs internal details out of error text before it is
// shown to an untrusted client.
package sanitize

import (
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxLength is the rune budget of a sanitized message.
	DefaultMaxLength = 300
	minMaxLength     = 16

	HashPlaceholder = "[hash]"
	RefPlaceholder  = "[ref]"
	ellipsis        = "..."
)

var defaultMounts = []string{
	"vault", "tmp", "var", "home", "Users", "root", "etc",
	"opt", "private", "srv", "mnt", "data", "app", "workspace",
	"usr", "proc", "run", "dev", "sys",
}

var (
	hashRe    = regexp.MustCompile(`\b[0-9a-fA-F]{40}(?:[0-9a-fA-F]{24})?\b`)
	refRe     = regexp.MustCompile(`\brefs/(?:heads|tags|remotes|pull|notes)/[^\s'"()\[\]<>,;]+`)
	winPathRe = regexp.MustCompile(`\b[A-Za-z]:\\[^\s'"()\[\]<>,;:]+`)
)

// Sanitizer applies the scrubbing rules. It is immutable and safe for
// concurrent use.
type Sanitizer struct {
	pathRe *regexp.Regexp
	maxLen int
}

// Option configures a Sanitizer.
type Option func(*config)

type config struct {
	maxLen   int
	prefixes []string
}

// WithMaxLength sets the maximum message length in runes.
func WithMaxLength(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxLen = max(n, minMaxLength)
		}
	}
}

// WithPrefixes registers extra sensitive absolute directories, such as the
// deployment's vault root.
func WithPrefixes(prefixes ...string) Option {
	return func(c *config) {
		for _, p := range prefixes {
			p = strings.Trim(strings.ReplaceAll(p, `\`, "/"), "/")
			if p != "" {
				c.prefixes = append(c.prefixes, p)
			}
		}
	}
}

// New builds a Sanitizer.
func New(opts ...Option) *Sanitizer {
	c := config{maxLen: DefaultMaxLength}
	for _, opt := range opts {
		opt(&c)
	}

	alts := make([]string, 0, len(c.prefixes)+len(defaultMounts))
	for _, p := range c.prefixes {
		alts = append(alts, regexp.QuoteMeta(p))
	}
	alts = append(alts, defaultMounts...)
	// Group 1 is whatever precedes the path. A word character or slash there
	// means the path is part of a URL or a relative path; "file://" and a
	// lone ":" are let through and sorted out in Message.
	re := regexp.MustCompile(`(^|file://|:|[^A-Za-z0-9._~/:-])(/+(?:` + strings.Join(alts, "|") + `)\b[^\s'"()\[\]{}<>,;:\x60]*)`)
	return &Sanitizer{pathRe: re, maxLen: c.maxLen}
}

var std = New()

// Message sanitizes raw with the default rules.
func Message(raw string) string {
	return std.Message(raw)
}

// Message returns raw with sensitive paths collapsed to their last segment,
// hex digests and VCS refs replaced by placeholders, and the result bounded
// to the configured length.
func (s *Sanitizer) Message(raw string) string {
	out := s.pathRe.ReplaceAllStringFunc(raw, func(m string) string {
		sub := s.pathRe.FindStringSubmatch(m)
		switch {
		case sub[1] == "file://":
			return lastSegment(sub[2])
		case sub[1] == ":" && strings.HasPrefix(sub[2], "//"):
			// scheme://host/..., not a filesystem path
			return m
		}
		return sub[1] + lastSegment(sub[2])
	})
	out = winPathRe.ReplaceAllStringFunc(out, func(m string) string {
		return lastSegment(strings.ReplaceAll(m[2:], `\`, "/"))
	})
	out = hashRe.ReplaceAllString(out, HashPlaceholder)
	out = refRe.ReplaceAllString(out, RefPlaceholder)
	return truncate(out, s.maxLen)
}

func lastSegment(p string) string {
	base := path.Base(strings.TrimRight(p, "/"))
	if base == "/" || base == "." || base == "" {
		return "[path]"
	}
	return base
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	keep := maxLen - len(ellipsis)
	i := 0
	for n := range s {
		if i == keep {
			return s[:n] + ellipsis
		}
		i++
	}
	return s
}
