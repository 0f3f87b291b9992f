package sshconfig

import (
	"regexp"
	"strings"
)

// ComputeEffectiveProperties replays the Remote-SSH extension's reading of
// an SSH config file: it returns the key/value settings the SSH client will
// apply to the given concrete host.
//
// Blocks are evaluated in file order, but each key is claimed by the first
// matching block that sets it. Later matching blocks may only contribute
// keys that are still unset. This first-match-wins rule is what OpenSSH
// itself does, and reproducing it exactly is what lets Verify detect a
// broader rule shadowing the managed block.
//
// A Host line naming several space-separated patterns is treated as one
// literal pattern. OpenSSH would evaluate each alternative independently;
// the extension this mirrors does not, so neither do we.
func ComputeEffectiveProperties(host, configText string) map[string]string {
	properties := make(map[string]string)
	claimed := make(map[string]bool)

	pattern := ""
	for _, line := range strings.Split(configText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := splitDirective(line)
		if !ok {
			continue
		}

		if strings.EqualFold(key, "Host") {
			pattern = value
			continue
		}
		if pattern == "" || !matchesHost(host, pattern) {
			continue
		}

		lower := strings.ToLower(key)
		if claimed[lower] {
			continue
		}
		claimed[lower] = true
		properties[key] = value
	}

	return properties
}

// EffectiveValue looks a key up case-insensitively, the way the SSH client
// treats directive names.
func EffectiveValue(properties map[string]string, key string) string {
	for k, v := range properties {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// splitDirective splits a "Key Value" or "Key=Value" config line.
func splitDirective(line string) (key, value string, ok bool) {
	idx := strings.IndexAny(line, " \t=")
	if idx <= 0 {
		return "", "", false
	}
	key = line[:idx]
	value = strings.TrimLeft(line[idx:], " \t=")
	if value == "" {
		return "", "", false
	}
	return key, value, true
}

// matchesHost evaluates an SSH Host pattern against a concrete host. The
// pattern is anchored; "*" matches any run of characters and "?" exactly
// one. Everything else, dots included, is literal.
func matchesHost(host, pattern string) bool {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(host)
}
