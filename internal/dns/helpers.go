package dns

import (
	"strings"
)

// OwnershipLabel prefixes the hostname for the TXT record that proves ownership.
const OwnershipLabel = "asuid"

// Normalize lower-cases a DNS name and strips surrounding whitespace and the
// trailing root dot.
// e.g. " App.Example.com. " → "app.example.com"
func Normalize(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}

// OwnershipName returns the name holding the ownership TXT record.
// e.g. "app.example.com" → "asuid.app.example.com"
func OwnershipName(hostname string) string {
	return OwnershipLabel + "." + Normalize(hostname)
}
