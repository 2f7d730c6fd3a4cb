// Package hub tracks live client connections per account. A connection is
// either user-scoped (receives everything addressed to the account) or
// machine-scoped (receives only events addressed to its machine).
package hub

import "sync"

type Writer interface {
	Write(message []byte) error
	Close() error
}

type Connection struct {
	AccountID string
	// MachineID is empty for user-scoped connections.
	MachineID string
	Writer    Writer
}

type Hub struct {
	mu        sync.RWMutex
	byAccount map[string]map[*Connection]struct{}
	byMachine map[string]map[*Connection]struct{} // accountID + "|" + machineID
}

func New() *Hub {
	return &Hub{
		byAccount: make(map[string]map[*Connection]struct{}),
		byMachine: make(map[string]map[*Connection]struct{}),
	}
}

func machineKey(accountID, machineID string) string {
	return accountID + "|" + machineID
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn.MachineID != "" {
		key := machineKey(conn.AccountID, conn.MachineID)
		if h.byMachine[key] == nil {
			h.byMachine[key] = make(map[*Connection]struct{})
		}
		h.byMachine[key][conn] = struct{}{}
		return
	}
	if h.byAccount[conn.AccountID] == nil {
		h.byAccount[conn.AccountID] = make(map[*Connection]struct{})
	}
	h.byAccount[conn.AccountID][conn] = struct{}{}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn.MachineID != "" {
		key := machineKey(conn.AccountID, conn.MachineID)
		h.removeLocked(h.byMachine, key, conn)
		return
	}
	h.removeLocked(h.byAccount, conn.AccountID, conn)
}

func (h *Hub) removeLocked(index map[string]map[*Connection]struct{}, key string, conn *Connection) {
	set := index[key]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(index, key)
	}
}

// BroadcastAccount delivers to every user-scoped connection of the account.
func (h *Hub) BroadcastAccount(accountID string, message []byte) {
	h.broadcast(h.byAccount, accountID, message)
}

// BroadcastMachine delivers to every connection subscribed to the machine.
func (h *Hub) BroadcastMachine(accountID, machineID string, message []byte) {
	h.broadcast(h.byMachine, machineKey(accountID, machineID), message)
}

func (h *Hub) broadcast(index map[string]map[*Connection]struct{}, key string, message []byte) {
	h.mu.RLock()
	set := index[key]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}
