package blocklist

import (
	"fmt"
	"net"
	"sync"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/types"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/yl2chen/cidranger"
	"go.uber.org/zap"
	"inet.af/netaddr"
)

// Store persists the ban list.
type Store interface {
	LoadBlocklist() ([]string, error)
	ReplaceBlocklist(ips []string) error
	AddIPs(ips []string) error
	RemoveIPs(ips []string) error
}

// Manager owns the ban list of the adapter core and the IP filter built from it.
type Manager struct {
	mutex     sync.RWMutex
	ips       []string
	index     map[string]struct{}
	ranger    cidranger.Ranger
	decisions *lru.Cache[string, bool]
	store     Store

	listenersMu sync.Mutex
	listeners   []func(types.BlocklistResponse)
}

func NewManager(store Store, cacheSize int) (*Manager, error) {
	cache, err := lru.New[string, bool](cacheSize)
	if err != nil {
		zap.L().Error("Failed to create LRU cache for filter decisions",
			zap.Int("maxEntries", cacheSize),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create LRU cache for filter decisions: %w", err)
	}

	return &Manager{
		index:     make(map[string]struct{}),
		ranger:    cidranger.NewPCTrieRanger(),
		decisions: cache,
		store:     store,
	}, nil
}

// Load restores the ban list from the store.
func (m *Manager) Load() error {
	ips, err := m.store.LoadBlocklist()
	if err != nil {
		return err
	}

	parsed := make([]string, 0, len(ips))
	for _, ip := range ips {
		canonical, err := canonicalize([]string{ip})
		if err != nil {
			// Rows are validated on the way in, so this only happens on a hand-edited DB.
			zap.L().Warn("Skipping invalid persisted IP", zap.String("ip", ip), zap.Error(err))
			continue
		}
		parsed = append(parsed, canonical...)
	}

	m.mutex.Lock()
	m.rebuild(parsed)
	m.mutex.Unlock()

	zap.L().Info("Restored blocklist", zap.Int("count", len(parsed)))
	return nil
}

// OnChange registers fn to be called with the new snapshot after every mutation.
func (m *Manager) OnChange(fn func(types.BlocklistResponse)) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, fn)
	m.listenersMu.Unlock()
}

func (m *Manager) notify() {
	snapshot := m.Snapshot()

	m.listenersMu.Lock()
	listeners := append([]func(types.BlocklistResponse){}, m.listeners...)
	m.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// Snapshot returns the current ban list in insertion order.
func (m *Manager) Snapshot() types.BlocklistResponse {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ips := make([]string, len(m.ips))
	copy(ips, m.ips)
	return types.BlocklistResponse{Size: len(ips), IPs: ips}
}

// Replace swaps the whole ban list for ips.
func (m *Manager) Replace(ips []string) error {
	parsed, err := canonicalize(ips)
	if err != nil {
		return err
	}

	m.mutex.Lock()
	if err := m.store.ReplaceBlocklist(parsed); err != nil {
		m.mutex.Unlock()
		zap.L().Error("Failed to persist blocklist replace", zap.Error(err))
		return err
	}
	m.rebuild(parsed)
	m.mutex.Unlock()

	zap.L().Info("Replaced blocklist", zap.Int("count", len(parsed)))
	m.notify()
	return nil
}

// Ban adds the IPs not yet banned and returns how many were added.
func (m *Manager) Ban(ips []string) (int, error) {
	parsed, err := canonicalize(ips)
	if err != nil {
		return 0, err
	}

	m.mutex.Lock()
	pending := make([]string, 0, len(parsed))
	for _, ip := range parsed {
		if _, ok := m.index[ip]; !ok {
			pending = append(pending, ip)
		}
	}
	if len(pending) == 0 {
		m.mutex.Unlock()
		return 0, nil
	}

	if err := m.store.AddIPs(pending); err != nil {
		m.mutex.Unlock()
		zap.L().Error("Failed to persist banned IPs", zap.Error(err))
		return 0, err
	}
	for _, ip := range pending {
		m.ips = append(m.ips, ip)
		m.index[ip] = struct{}{}
		m.insertRule(ip)
	}
	m.decisions.Purge()
	m.mutex.Unlock()

	zap.L().Info("Banned IPs", zap.Int("added", len(pending)))
	m.notify()
	return len(pending), nil
}

// Unban removes the banned IPs among ips and returns how many were removed.
func (m *Manager) Unban(ips []string) (int, error) {
	parsed, err := canonicalize(ips)
	if err != nil {
		return 0, err
	}

	m.mutex.Lock()
	pending := make(map[string]struct{}, len(parsed))
	for _, ip := range parsed {
		if _, ok := m.index[ip]; ok {
			pending[ip] = struct{}{}
		}
	}
	if len(pending) == 0 {
		m.mutex.Unlock()
		return 0, nil
	}

	removed := make([]string, 0, len(pending))
	for ip := range pending {
		removed = append(removed, ip)
	}
	if err := m.store.RemoveIPs(removed); err != nil {
		m.mutex.Unlock()
		zap.L().Error("Failed to persist unbanned IPs", zap.Error(err))
		return 0, err
	}

	kept := m.ips[:0]
	for _, ip := range m.ips {
		if _, drop := pending[ip]; drop {
			delete(m.index, ip)
			m.removeRule(ip)
			continue
		}
		kept = append(kept, ip)
	}
	m.ips = kept
	m.decisions.Purge()
	m.mutex.Unlock()

	zap.L().Info("Unbanned IPs", zap.Int("removed", len(removed)))
	m.notify()
	return len(removed), nil
}

// IsBlocked returns true if the filter rejects connections from ipStr.
func (m *Manager) IsBlocked(ipStr string) bool {
	ip, err := netaddr.ParseIP(ipStr)
	if err != nil {
		zap.L().Warn("Invalid IP for blocklist check", zap.String("ip", ipStr), zap.Error(err))
		return false
	}
	key := ip.Unmap().String()

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if blocked, ok := m.decisions.Get(key); ok {
		return blocked
	}

	blocked, err := m.ranger.Contains(ip.Unmap().IPAddr().IP)
	if err != nil {
		zap.L().Error("CIDR check error", zap.String("ip", key), zap.Error(err))
		return false
	}
	m.decisions.Add(key, blocked)
	return blocked
}

// rebuild resets all state to ips. Callers hold m.mutex.
func (m *Manager) rebuild(ips []string) {
	m.ips = ips
	m.index = make(map[string]struct{}, len(ips))
	m.ranger = cidranger.NewPCTrieRanger()
	for _, ip := range ips {
		m.index[ip] = struct{}{}
		m.insertRule(ip)
	}
	m.decisions.Purge()
}

func (m *Manager) insertRule(ip string) {
	network := hostNetwork(netaddr.MustParseIP(ip))
	if err := m.ranger.Insert(cidranger.NewBasicRangerEntry(network)); err != nil {
		zap.L().Error("Failed to insert filter rule", zap.String("ip", ip), zap.Error(err))
	}
}

func (m *Manager) removeRule(ip string) {
	network := hostNetwork(netaddr.MustParseIP(ip))
	if _, err := m.ranger.Remove(network); err != nil {
		zap.L().Error("Failed to remove filter rule", zap.String("ip", ip), zap.Error(err))
	}
}

func hostNetwork(ip netaddr.IP) net.IPNet {
	return *netaddr.IPPrefixFrom(ip, ip.BitLen()).IPNet()
}

// canonicalize parses every entry, returns their canonical text form with
// duplicates collapsed (first occurrence wins) and fails on any invalid entry.
func canonicalize(ips []string) ([]string, error) {
	var result *multierror.Error
	seen := make(map[string]struct{}, len(ips))
	out := make([]string, 0, len(ips))

	for _, raw := range ips {
		ip, err := netaddr.ParseIP(raw)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("invalid IP %q: %w", raw, err))
			continue
		}
		canonical := ip.Unmap().String()
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return out, nil
}
