// Package contacts maps a dialed number to a SIP dial target, grounded
// on the original Rust CONTACTS map (a handful of same-server
// extensions, all sips: URIs against SERVER_NAME/SERVER_PORT), read
// once at startup and never mutated afterward.
package contacts

import "github.com/frandline/frandline/internal/dialog"

// Directory is a read-only number-to-target lookup table.
type Directory struct {
	entries map[string]dialog.Target
}

// defaultExtensions mirrors the original contacts.rs CONTACTS map: a
// handful of same-server extensions dialable by number.
var defaultExtensions = []string{"1100", "1101", "1102", "1103"}

// Default builds the directory from the original implementation's
// fixed extension list, each extension dialing itself as the SIP user
// part.
func Default() *Directory {
	d := &Directory{entries: make(map[string]dialog.Target, len(defaultExtensions))}
	for _, ext := range defaultExtensions {
		d.entries[ext] = dialog.Target{User: ext}
	}
	return d
}

// New builds a directory from an explicit number-to-user mapping, for
// deployments with their own extension list.
func New(numberToUser map[string]string) *Directory {
	d := &Directory{entries: make(map[string]dialog.Target, len(numberToUser))}
	for number, user := range numberToUser {
		d.entries[number] = dialog.Target{User: user}
	}
	return d
}

// Lookup returns the dial target for number, if known.
func (d *Directory) Lookup(number string) (dialog.Target, bool) {
	t, ok := d.entries[number]
	return t, ok
}
