package panel

import (
	"fmt"
	"sync"
)

// Row is a single table record. The IP is whatever the backend sent.
type Row struct {
	IP string
}

// Store is the in-memory row store backing the table.
type Store struct {
	mu   sync.RWMutex
	rows []Row
}

func NewStore() *Store {
	return &Store{rows: []Row{}}
}

// LoadData replaces every row with one row per ip, in order.
func (s *Store) LoadData(ips []string) {
	rows := make([]Row, len(ips))
	for i, ip := range ips {
		rows[i] = Row{IP: ip}
	}

	s.mu.Lock()
	s.rows = rows
	s.mu.Unlock()
}

// Rows returns a copy of the current rows.
func (s *Store) Rows() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]Row, len(s.rows))
	copy(rows, s.rows)
	return rows
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// SetIP commits an edit of the IP cell of row index.
func (s *Store) SetIP(index int, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.rows) {
		return fmt.Errorf("row %d out of range (0-%d)", index, len(s.rows)-1)
	}
	s.rows[index].IP = ip
	return nil
}
