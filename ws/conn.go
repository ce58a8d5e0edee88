package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// Em produção restrinja o origin ao domínio do frontend
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Identity é a identidade já resolvida pelo servidor (JWT + linha de membro)
// antes do upgrade.
type Identity struct {
	EmpresaID string
	MembroID  string
	Funcao    string
}

type wsConn struct {
	id   Identity
	conn *websocket.Conn
	hub  *Hub
	mu   sync.Mutex // gorilla permite um writer por vez
}

func (c *wsConn) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}
func (c *wsConn) Close() error      { return c.conn.Close() }
func (c *wsConn) EmpresaID() string { return c.id.EmpresaID }
func (c *wsConn) MembroID() string  { return c.id.MembroID }

// Serve faz o upgrade, registra a conexão no hub e mantém o loop de leitura
// apenas para detectar fechamento.
func Serve(hub *Hub, id Identity, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	wc := &wsConn{id: id, conn: conn, hub: hub}
	hub.Add(wc)
	defer func() {
		hub.Remove(wc)
		_ = conn.Close()
	}()

	_ = wc.SendJSON(map[string]any{
		"type":      "ws.ready",
		"idEmpresa": id.EmpresaID,
		"idMembro":  id.MembroID,
		"funcao":    id.Funcao,
		"ts":        time.Now().UTC(),
	})

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := wc.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
