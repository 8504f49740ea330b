package toolchain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidVersionOutput = errors.New("invalid output returned by `rustc --version`")
	ErrUnparsableVersion    = errors.New("unable to parse rustc version")
)

// rustc 1.10.0-nightly (57ef01513 2016-05-23)
var versionRe = regexp.MustCompile(`^rustc ([\d.]+)(?:-(\w+))? \((\w+) (\d+)-(\d+)-(\d+)\)`)

// ParseVersion turns the full `rustc --version` line into the compact form
// used as resource suffix, e.g. 20160523-1.10.0-nightly-57ef01513. Stable
// releases carry no channel in their version line and get "stable".
func ParseVersion(full string) (string, error) {
	m := versionRe.FindStringSubmatch(strings.TrimSpace(full))
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrUnparsableVersion, full)
	}
	channel := m[2]
	if channel == "" {
		channel = "stable"
	}
	return fmt.Sprintf("%s%s%s-%s-%s-%s", m[4], m[5], m[6], m[1], channel, m[3]), nil
}

// versionLine accepts output consisting of exactly one non-empty line.
func versionLine(out []byte) (string, error) {
	text := strings.TrimSuffix(string(out), "\n")
	text = strings.TrimSuffix(text, "\r")
	if text == "" || strings.ContainsAny(text, "\r\n") {
		return "", ErrInvalidVersionOutput
	}
	return strings.TrimSpace(text), nil
}
