// Package mapping holds the static table that ties a verified identity to
// its downstream IriusRisk credential pair. The table is the sole trust
// boundary between "authenticated at the IdP" and "authorized to use the
// downstream API": an identity the IdP vouches for but that has no enabled
// entry here gets nothing.
package mapping

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNotMapped indicates the identity has no credential mapping
	ErrNotMapped = errors.New("identity not mapped")

	// ErrDisabled indicates the identity's mapping exists but is disabled
	ErrDisabled = errors.New("identity mapping disabled")
)

// Credential is the downstream credential pair bound to an identity
type Credential struct {
	// APIKey is the static IriusRisk API key
	APIKey string

	// Hostname is the IriusRisk instance base URL
	Hostname string
}

// Entry is the on-disk form of a single mapping, keyed by identity in the
// user_mappings document section.
type Entry struct {
	APIKey   string `yaml:"iriusrisk_api_key"`
	Hostname string `yaml:"iriusrisk_hostname"`
	// Enabled defaults to true when omitted
	Enabled *bool `yaml:"enabled,omitempty"`
}

// record is the normalized in-memory form of an Entry
type record struct {
	credential Credential
	enabled    bool
}

// Store is the in-memory credential mapping table. Reads vastly outnumber
// writes (writes happen only on reload or an admin toggle), so a single
// RWMutex over a map is enough.
type Store struct {
	mu      sync.RWMutex
	records map[string]record
	logger  *slog.Logger
}

// New creates an empty mapping store
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		records: make(map[string]record),
		logger:  logger.With("component", "mapping"),
	}
}

// Replace atomically swaps the whole table for the given entries.
// Identities absent from the new table lose access on the next lookup.
func (s *Store) Replace(entries map[string]Entry) error {
	records, err := normalize(entries)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	s.logger.Info("credential mappings replaced", "entries", len(records))
	return nil
}

// LoadFile reads a YAML document holding a user_mappings section and replaces
// the table with its contents. On any read, parse, or validation error the
// previous table is kept untouched.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read mapping file: %w", err)
	}

	var doc struct {
		UserMappings map[string]Entry `yaml:"user_mappings"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse mapping file: %w", err)
	}

	return s.Replace(doc.UserMappings)
}

// Lookup resolves an identity to its downstream credential pair.
// Returns ErrNotMapped for unknown identities and ErrDisabled for known but
// disabled ones; callers must treat both as a denial.
func (s *Store) Lookup(identity string) (*Credential, error) {
	s.mu.RLock()
	rec, ok := s.records[identity]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotMapped
	}
	if !rec.enabled {
		return nil, ErrDisabled
	}
	cred := rec.credential
	return &cred, nil
}

// SetEnabled toggles an identity's mapping without replacing the table.
// Disabling takes effect on the next lookup, which invalidates every
// outstanding access token bound to the identity.
func (s *Store) SetEnabled(identity string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return ErrNotMapped
	}
	rec.enabled = enabled
	s.records[identity] = rec

	s.logger.Info("credential mapping toggled", "enabled", enabled)
	return nil
}

// Size returns the number of mapped identities, enabled or not
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Identities returns all mapped identity keys, for diagnostics
func (s *Store) Identities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.records))
	for identity := range s.records {
		out = append(out, identity)
	}
	return out
}

func normalize(entries map[string]Entry) (map[string]record, error) {
	records := make(map[string]record, len(entries))
	for identity, entry := range entries {
		if identity == "" {
			return nil, fmt.Errorf("mapping entry with empty identity key")
		}
		if entry.APIKey == "" {
			return nil, fmt.Errorf("mapping for %q has no iriusrisk_api_key", identity)
		}
		if entry.Hostname == "" {
			return nil, fmt.Errorf("mapping for %q has no iriusrisk_hostname", identity)
		}
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		records[identity] = record{
			credential: Credential{APIKey: entry.APIKey, Hostname: entry.Hostname},
			enabled:    enabled,
		}
	}
	return records, nil
}
