package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/Dcadv789/scalazap/db"
	"github.com/Dcadv789/scalazap/ws"
)

func TestWebhookVerify(t *testing.T) {
	s := &Server{VerifyToken: "tok-meta"}

	cases := []struct {
		name     string
		query    string
		wantCode int
		wantBody string
	}{
		{"valid handshake", "hub.mode=subscribe&hub.verify_token=tok-meta&hub.challenge=12345", http.StatusOK, "12345"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=errado&hub.challenge=12345", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=tok-meta&hub.challenge=12345", http.StatusForbidden, ""},
		{"empty token", "hub.mode=subscribe&hub.verify_token=&hub.challenge=12345", http.StatusForbidden, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/whatsapp/webhook?"+c.query, nil)
			w := httptest.NewRecorder()
			s.WebhookVerify(w, r)
			if w.Code != c.wantCode {
				t.Fatalf("code = %d, want %d", w.Code, c.wantCode)
			}
			if c.wantBody != "" && w.Body.String() != c.wantBody {
				t.Fatalf("body = %q, want %q", w.Body.String(), c.wantBody)
			}
		})
	}
}

type fakeIngest struct {
	raw       [][]byte
	conns     map[string]db.Conexao // phone_number_id -> conexao
	contatos  map[string]string     // telefone|empresa -> id
	mensagens []db.Mensagem
	statuses  map[string]string // wa_message_id -> status de saída
	nextID    int
}

func newFakeIngest() *fakeIngest {
	return &fakeIngest{
		conns:    map[string]db.Conexao{},
		contatos: map[string]string{},
		statuses: map[string]string{},
	}
}

func (f *fakeIngest) LogRaw(ctx context.Context, origem string, payload []byte) error {
	f.raw = append(f.raw, payload)
	return nil
}

func (f *fakeIngest) ConnectionByPhoneNumberID(ctx context.Context, phoneNumberID string) (db.Conexao, bool, error) {
	c, ok := f.conns[phoneNumberID]
	return c, ok, nil
}

func (f *fakeIngest) UpsertContato(ctx context.Context, empresaID, telefone, nome string) (string, error) {
	key := telefone + "|" + empresaID
	if id, ok := f.contatos[key]; ok {
		return id, nil
	}
	f.nextID++
	id := "contato-" + strconv.Itoa(f.nextID)
	f.contatos[key] = id
	return id, nil
}

func (f *fakeIngest) InsertInbound(ctx context.Context, m db.Mensagem) (db.Mensagem, error) {
	f.mensagens = append(f.mensagens, m)
	return m, nil
}

func (f *fakeIngest) AdvanceOutboundStatus(ctx context.Context, empresaID, waMessageID, status string) error {
	if MessageStatusRank(status) > MessageStatusRank(f.statuses[waMessageID]) {
		f.statuses[waMessageID] = status
	}
	return nil
}

func ingestServer(f *fakeIngest) *Server {
	return &Server{Ingest: f, Hub: ws.NewHub()}
}

func postWebhook(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/whatsapp/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.WebhookReceive(w, r)
	return w
}

func TestWebhookReceiveZeroMessages(t *testing.T) {
	f := newFakeIngest()
	s := ingestServer(f)

	body := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"106540352242922"}
	}}]}]}`
	w := postWebhook(t, s, body)

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	if w.Body.String() != "EVENT_RECEIVED" {
		t.Fatalf("body = %q", w.Body.String())
	}
	if len(f.raw) != 1 {
		t.Fatalf("raw logs = %d, want exatamente 1", len(f.raw))
	}
	if len(f.mensagens) != 0 {
		t.Fatalf("mensagens = %d, want 0", len(f.mensagens))
	}
}

func TestWebhookReceiveUnparseableStill200(t *testing.T) {
	f := newFakeIngest()
	w := postWebhook(t, ingestServer(f), "nao é json")

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	if len(f.raw) != 1 {
		t.Fatalf("corpo cru tem que ser logado mesmo sem parse: %d", len(f.raw))
	}
}

func inboundBody(phoneNumberID, from, msgID, text string) string {
	return `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"` + phoneNumberID + `"},
		"contacts":[{"profile":{"name":"Maria"},"wa_id":"` + from + `"}],
		"messages":[{"from":"` + from + `","id":"` + msgID + `","type":"text","text":{"body":"` + text + `"}}]
	}}]}]}`
}

func TestWebhookContactUpsertIdempotent(t *testing.T) {
	f := newFakeIngest()
	f.conns["106540352242922"] = db.Conexao{ID: "conn-1", IDEmpresa: "emp-1", PhoneNumberID: "106540352242922"}
	s := ingestServer(f)

	postWebhook(t, s, inboundBody("106540352242922", "5511999990001", "wamid.A", "oi"))
	postWebhook(t, s, inboundBody("106540352242922", "5511999990001", "wamid.B", "tudo bem?"))

	if len(f.contatos) != 1 {
		t.Fatalf("contatos = %d, want exatamente 1 após duas entregas", len(f.contatos))
	}
	if len(f.mensagens) != 2 {
		t.Fatalf("mensagens = %d, want 2", len(f.mensagens))
	}
	if f.mensagens[0].IDContato != f.mensagens[1].IDContato {
		t.Fatalf("as duas mensagens devem apontar o mesmo contato: %s vs %s",
			f.mensagens[0].IDContato, f.mensagens[1].IDContato)
	}
	if f.mensagens[0].IDEmpresa != "emp-1" {
		t.Fatalf("mensagem sem empresa da conexão: %+v", f.mensagens[0])
	}
}

func TestWebhookUnknownPhoneNumberIgnored(t *testing.T) {
	f := newFakeIngest()
	s := ingestServer(f)

	w := postWebhook(t, s, inboundBody("999", "5511999990001", "wamid.A", "oi"))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	if len(f.mensagens) != 0 || len(f.contatos) != 0 {
		t.Fatal("número desconhecido não pode gerar contato nem mensagem")
	}
}

func statusBody(phoneNumberID, waID, status string) string {
	return `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"` + phoneNumberID + `"},
		"statuses":[{"id":"` + waID + `","status":"` + status + `","recipient_id":"5511999990001"}]
	}}]}]}`
}

func TestWebhookStatusOutOfOrder(t *testing.T) {
	f := newFakeIngest()
	f.conns["106540352242922"] = db.Conexao{ID: "conn-1", IDEmpresa: "emp-1", PhoneNumberID: "106540352242922"}
	s := ingestServer(f)

	postWebhook(t, s, statusBody("106540352242922", "wamid.OUT", "read"))
	// delivered atrasado não pode rebaixar o lido
	postWebhook(t, s, statusBody("106540352242922", "wamid.OUT", "delivered"))

	if got := f.statuses["wamid.OUT"]; got != "lido" {
		t.Fatalf("status = %q, want lido", got)
	}
}

func TestMessageStatusRank(t *testing.T) {
	order := []string{"enviado", "entregue", "lido", "falha"}
	for i := 1; i < len(order); i++ {
		if MessageStatusRank(order[i-1]) >= MessageStatusRank(order[i]) {
			t.Fatalf("%s deveria vir antes de %s", order[i-1], order[i])
		}
	}
	if MessageStatusRank("recebido") != 0 || MessageStatusRank("") != 0 {
		t.Fatal("status fora do fluxo de saída tem rank 0")
	}
}

func TestMapMetaStatus(t *testing.T) {
	cases := []struct {
		meta string
		want string
		ok   bool
	}{
		{"sent", "enviado", true},
		{"delivered", "entregue", true},
		{"read", "lido", true},
		{"failed", "falha", true},
		{"deleted", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := MapMetaStatus(c.meta)
		if got != c.want || ok != c.ok {
			t.Errorf("MapMetaStatus(%q) = %q, %v; want %q, %v", c.meta, got, ok, c.want, c.ok)
		}
	}
}
