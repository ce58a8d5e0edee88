package ws

import "testing"

type fakeConn struct {
	empresa  string
	membro   string
	received []any
}

func (f *fakeConn) SendJSON(v any) error { f.received = append(f.received, v); return nil }
func (f *fakeConn) Close() error         { return nil }
func (f *fakeConn) MembroID() string     { return f.membro }
func (f *fakeConn) EmpresaID() string    { return f.empresa }

func TestBroadcastTenantIsolation(t *testing.T) {
	h := NewHub()
	a1 := &fakeConn{empresa: "emp-a", membro: "m1"}
	a2 := &fakeConn{empresa: "emp-a", membro: "m2"}
	b1 := &fakeConn{empresa: "emp-b", membro: "m3"}
	h.Add(a1)
	h.Add(a2)
	h.Add(b1)

	h.Broadcast(BroadcastOpts{EmpresaID: "emp-a"}, "evento")

	if len(a1.received) != 1 || len(a2.received) != 1 {
		t.Fatalf("emp-a deveria receber: a1=%d a2=%d", len(a1.received), len(a2.received))
	}
	if len(b1.received) != 0 {
		t.Fatalf("emp-b não pode receber broadcast de emp-a: got %d", len(b1.received))
	}
}

func TestBroadcastTargetedMembers(t *testing.T) {
	h := NewHub()
	m1 := &fakeConn{empresa: "emp-a", membro: "m1"}
	m2 := &fakeConn{empresa: "emp-a", membro: "m2"}
	h.Add(m1)
	h.Add(m2)

	h.Broadcast(BroadcastOpts{EmpresaID: "emp-a", MembroIDs: []string{"m2"}}, "privado")

	if len(m1.received) != 0 {
		t.Fatalf("m1 não era destinatário: got %d", len(m1.received))
	}
	if len(m2.received) != 1 {
		t.Fatalf("m2 deveria receber: got %d", len(m2.received))
	}
}

func TestBroadcastUnknownEmpresa(t *testing.T) {
	h := NewHub()
	h.Broadcast(BroadcastOpts{EmpresaID: "inexistente"}, "nada") // não pode entrar em pânico
}

func TestRemoveStopsDelivery(t *testing.T) {
	h := NewHub()
	c := &fakeConn{empresa: "emp-a", membro: "m1"}
	h.Add(c)
	h.Remove(c)

	h.Broadcast(BroadcastOpts{EmpresaID: "emp-a"}, "evento")
	if len(c.received) != 0 {
		t.Fatalf("conexão removida recebeu broadcast: %d", len(c.received))
	}
}

func TestMultipleConnsSameMembro(t *testing.T) {
	// mesma pessoa com duas abas abertas
	h := NewHub()
	tab1 := &fakeConn{empresa: "emp-a", membro: "m1"}
	tab2 := &fakeConn{empresa: "emp-a", membro: "m1"}
	h.Add(tab1)
	h.Add(tab2)

	h.Broadcast(BroadcastOpts{EmpresaID: "emp-a"}, "evento")
	if len(tab1.received) != 1 || len(tab2.received) != 1 {
		t.Fatalf("as duas abas deveriam receber: %d/%d", len(tab1.received), len(tab2.received))
	}

	h.Remove(tab1)
	h.Broadcast(BroadcastOpts{EmpresaID: "emp-a"}, "evento")
	if len(tab1.received) != 1 || len(tab2.received) != 2 {
		t.Fatalf("após remover tab1: %d/%d", len(tab1.received), len(tab2.received))
	}
}
