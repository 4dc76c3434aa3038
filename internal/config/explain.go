// ABOUTME: Human-readable rendering of effective configuration
// ABOUTME: Used by the "config" CLI subcommand; the auth token is masked

package config

import (
	"fmt"
	"strings"
)

// Explain renders a human-readable summary of the effective settings,
// grouped by section. Unset values are shown as "(unset)".
func Explain(s *Settings) string {
	if s == nil {
		s = &Settings{}
	}

	var b strings.Builder

	b.WriteString("=== Server ===\n")
	field(&b, "ServerURL", s.ServerURL)
	field(&b, "EndpointPath", s.EndpointPath)
	field(&b, "AuthToken", maskToken(s.AuthToken))
	field(&b, "DefaultAgent", s.DefaultAgent)
	b.WriteString("\n")

	b.WriteString("=== Client ===\n")
	field(&b, "ClientName", s.ClientName)
	field(&b, "ClientVersion", s.ClientVersion)
	field(&b, "RequestTimeout", durationString(s.RequestTimeout))
	field(&b, "StreamIdleTimeout", durationString(s.StreamIdleTimeout))
	field(&b, "LogLevel", s.LogLevel)
	b.WriteString("\n")

	b.WriteString("=== Files ===\n")
	field(&b, "Global", GlobalConfigFile())
	field(&b, "Secure", SecureStoreFile())

	return b.String()
}

func field(b *strings.Builder, name, value string) {
	if value == "" {
		value = "(unset)"
	}
	fmt.Fprintf(b, "  %-18s %s\n", name+":", value)
}

func durationString(d Duration) string {
	if d == 0 {
		return ""
	}
	return d.Std().String()
}

// maskToken keeps the last four characters of a token.
func maskToken(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 8 {
		return "****"
	}
	return "****" + tok[len(tok)-4:]
}
