// Package peertable is the authoritative in-memory registry of known peers
// (spec.md §4.1). It is a concurrent mapping from peer IP to PeerRecord
// with atomic upsert, age, and snapshot operations.
package peertable

import (
	"net"
	"strconv"
	"sync"
	"time"
)

// Record describes a peer as known to this node. Peers are keyed by IP
// alone, not by IP:port, matching src/core/network_manager.py's
// peer_ip = addr[0]: a peer dials from an ephemeral source port but always
// streams back to the same advertised StreamPort, so IP is the stable
// identity that discovery, the connection table, and name lookup must all
// agree on.
type Record struct {
	IP         string // the table key
	Username   string
	StreamPort int
	LastSeen   time.Time
}

// DialAddress returns the host:port this peer's stream endpoint is dialed
// at.
func (r Record) DialAddress() string {
	return net.JoinHostPort(r.IP, strconv.Itoa(r.StreamPort))
}

// Table is a concurrent map from peer IP to Record. Construct it with New;
// the zero value has a nil map and Upsert on it panics.
type Table struct {
	mu    sync.RWMutex
	peers map[string]Record
}

// New returns an empty Table.
func New() *Table {
	return &Table{peers: make(map[string]Record)}
}

// Upsert inserts a new record or refreshes LastSeen on an existing one.
// Reports whether the record was newly created, for the caller to log.
func (t *Table) Upsert(ip, username string, streamPort int, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, existed := t.peers[ip]
	t.peers[ip] = Record{
		IP:         ip,
		Username:   username,
		StreamPort: streamPort,
		LastSeen:   now,
	}
	return !existed
}

// Remove deletes a single peer unconditionally (used by Strategy B, which
// has no timeout-based aging: spec.md §4.2).
func (t *Table) Remove(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, ip)
}

// Age removes and returns every record whose LastSeen is older than
// now-timeout (spec.md §4.1).
func (t *Table) Age(now time.Time, timeout time.Duration) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	var aged []Record
	for ip, rec := range t.peers {
		if now.Sub(rec.LastSeen) > timeout {
			aged = append(aged, rec)
			delete(t.peers, ip)
		}
	}
	return aged
}

// Snapshot returns a consistent copy of the table, safe for the caller to
// range over without holding any lock.
func (t *Table) Snapshot() map[string]Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := make(map[string]Record, len(t.peers))
	for ip, rec := range t.peers {
		snap[ip] = rec
	}
	return snap
}

// Lookup returns a single record by IP, for resolving a connection's remote
// address to a display name (spec.md §4.5 text path).
func (t *Table) Lookup(ip string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.peers[ip]
	return rec, ok
}

// Len reports the number of known peers.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}
