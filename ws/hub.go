package ws

import "sync"

type Conn interface {
	SendJSON(v any) error
	Close() error
	MembroID() string
	EmpresaID() string
}

// Hub agrupa as conexões vivas por empresa. Broadcast nunca cruza a
// fronteira de empresa; dentro dela pode ir para todos ou para uma lista de
// membros.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[Conn]struct{} // id da empresa -> conexões abertas
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[Conn]struct{})}
}

func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[c.EmpresaID()]
	if set == nil {
		set = make(map[Conn]struct{})
		h.conns[c.EmpresaID()] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Remove(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[c.EmpresaID()]
	if set == nil {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.EmpresaID())
	}
}

type BroadcastOpts struct {
	EmpresaID string
	MembroIDs []string // vazio => todos os membros da empresa
}

func (h *Hub) Broadcast(opts BroadcastOpts, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var only map[string]bool
	if len(opts.MembroIDs) > 0 {
		only = make(map[string]bool, len(opts.MembroIDs))
		for _, id := range opts.MembroIDs {
			only[id] = true
		}
	}

	for c := range h.conns[opts.EmpresaID] {
		if only != nil && !only[c.MembroID()] {
			continue
		}
		_ = c.SendJSON(payload) // write quebrado é limpo no Remove
	}
}
