// Package geoip provides optional client-IP country lookup for error log
// enrichment, backed by a local MaxMind database.
package geoip

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/maxminddb-golang"
)

// Service wraps a maxminddb reader with hot-reload via RWMutex.
type Service struct {
	mu     sync.RWMutex
	reader *maxminddb.Reader
}

// Open loads the database at path.
func Open(path string) (*Service, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open %s: %w", path, err)
	}
	return &Service{reader: reader}, nil
}

// Country returns the ISO country code for ip, or "" when the address is
// unparseable, unknown, or the database is closed.
func (s *Service) Country(ip string) string {
	addr := net.ParseIP(ip)
	if addr == nil {
		return ""
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reader == nil {
		return ""
	}

	var record struct {
		Country struct {
			ISOCode string `maxminddb:"iso_code"`
		} `maxminddb:"country"`
	}
	if err := s.reader.Lookup(addr, &record); err != nil {
		return ""
	}
	return record.Country.ISOCode
}

// Reload swaps in a fresh database, e.g. after an external update.
func (s *Service) Reload(path string) error {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return fmt.Errorf("geoip: reload %s: %w", path, err)
	}

	s.mu.Lock()
	old := s.reader
	s.reader = reader
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// Close releases the underlying database.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}
