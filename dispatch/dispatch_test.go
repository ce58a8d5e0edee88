package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dcadv789/scalazap/graph"
)

type fakeRecipient struct {
	id        string
	telefone  string
	status    string
	claimedAt time.Time
}

type fakeStore struct {
	mu        sync.Mutex
	campaign  Campaign
	status    string
	enviados  int
	falhas    int
	recips    []*fakeRecipient
	released  int
	claimable bool
}

func (s *fakeStore) ClaimCampaign(ctx context.Context, campaignID, tenantID string) (Campaign, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.claimable || s.status != "draft" || campaignID != s.campaign.ID || tenantID != s.campaign.TenantID {
		return Campaign{}, false, nil
	}
	s.status = "sending"
	return s.campaign, true, nil
}

func (s *fakeStore) StuckCampaigns(ctx context.Context) ([]Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == "sending" {
		return []Campaign{s.campaign}, nil
	}
	return nil, nil
}

func (s *fakeStore) ReleaseStaleClaims(ctx context.Context, campaignID string, olderThan time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recips {
		// mesma regra do banco: só devolve claims mais velhos que a carência
		if r.status == "sending" && time.Since(r.claimedAt) > olderThan {
			r.status = "pending"
			s.released++
		}
	}
	return nil
}

func (s *fakeStore) NextPending(ctx context.Context, campaignID string) (Recipient, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recips {
		if r.status == "pending" {
			r.status = "sending"
			r.claimedAt = time.Now()
			return Recipient{ID: r.id, Telefone: r.telefone}, true, nil
		}
	}
	return Recipient{}, false, nil
}

func (s *fakeStore) MarkSent(ctx context.Context, campaignID, recipientID, waMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recips {
		if r.id == recipientID {
			r.status = "sent"
		}
	}
	s.enviados++
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, campaignID, recipientID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recips {
		if r.id == recipientID {
			r.status = "failed"
		}
	}
	s.falhas++
	return nil
}

func (s *fakeStore) FinishIfDone(ctx context.Context, campaignID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recips {
		if r.status == "pending" || r.status == "sending" {
			return false, nil
		}
	}
	s.status = "completed"
	return true, nil
}

func (s *fakeStore) snapshot() (status string, enviados, falhas int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.enviados, s.falhas
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	failN map[string]bool
}

func (f *fakeSender) SendTemplate(ctx context.Context, token, phoneNumberID, to, template, lang string) (graph.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	if f.failN[to] {
		return graph.SendResult{StatusCode: 400}, errors.New("template rejected")
	}
	return graph.SendResult{MessageID: "wamid." + to, StatusCode: 200}, nil
}

func newStore(telefones ...string) *fakeStore {
	s := &fakeStore{
		campaign: Campaign{
			ID: "camp-1", TenantID: "emp-1", Template: "promo", Idioma: "pt_BR",
			PhoneNumberID: "123", AccessToken: "tok",
		},
		status:    "draft",
		claimable: true,
	}
	for i, t := range telefones {
		s.recips = append(s.recips, &fakeRecipient{id: string(rune('a' + i)), telefone: t, status: "pending"})
	}
	return s
}

func waitCompleted(t *testing.T, s *fakeStore) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if status, _, _ := s.snapshot(); status == "completed" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("campaign never completed")
}

func TestDispatchCompletesWithCounters(t *testing.T) {
	store := newStore("5511999990001", "55 (11) 99999-0002", "5511999990003")
	sender := &fakeSender{failN: map[string]bool{"5511999990002": true}}
	r := NewRunner(store, sender, WithPacing(time.Millisecond, 4*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	ok, err := r.Dispatch(ctx, "camp-1", "emp-1")
	if err != nil || !ok {
		t.Fatalf("Dispatch = %v, %v; want true, nil", ok, err)
	}
	waitCompleted(t, store)

	_, enviados, falhas := store.snapshot()
	if enviados+falhas != 3 {
		t.Fatalf("enviados+falhas = %d, want 3", enviados+falhas)
	}
	if enviados != 2 || falhas != 1 {
		t.Fatalf("enviados=%d falhas=%d, want 2/1", enviados, falhas)
	}
}

func TestDispatchNormalizesPhones(t *testing.T) {
	store := newStore("+55 (11) 98888-0001")
	sender := &fakeSender{}
	r := NewRunner(store, sender, WithPacing(time.Millisecond, 4*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	if ok, _ := r.Dispatch(ctx, "camp-1", "emp-1"); !ok {
		t.Fatal("Dispatch returned false")
	}
	waitCompleted(t, store)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 || sender.sent[0] != "5511988880001" {
		t.Fatalf("sent = %v, want [5511988880001]", sender.sent)
	}
	if strings.ContainsAny(sender.sent[0], "+() -") {
		t.Fatalf("phone not normalized: %q", sender.sent[0])
	}
}

func TestDoubleDispatchRejected(t *testing.T) {
	store := newStore("5511999990001")
	r := NewRunner(store, &fakeSender{}, WithPacing(time.Millisecond, 4*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	if ok, _ := r.Dispatch(ctx, "camp-1", "emp-1"); !ok {
		t.Fatal("first Dispatch returned false")
	}
	if ok, _ := r.Dispatch(ctx, "camp-1", "emp-1"); ok {
		t.Fatal("second Dispatch should be rejected while sending")
	}
	waitCompleted(t, store)
}

func TestDispatchWrongTenantRejected(t *testing.T) {
	store := newStore("5511999990001")
	r := NewRunner(store, &fakeSender{}, WithPacing(time.Millisecond, 4*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	if ok, _ := r.Dispatch(ctx, "camp-1", "outra-empresa"); ok {
		t.Fatal("Dispatch for another tenant should be rejected")
	}
}

func TestResumeProcessesStuckCampaign(t *testing.T) {
	store := newStore("5511999990001", "5511999990002")
	store.status = "sending" // processo anterior morreu no meio
	store.claimable = false
	store.recips[0].status = "sending" // claim órfão, já velho (claimedAt zero)

	r := NewRunner(store, &fakeSender{}, WithPacing(time.Millisecond, 4*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	waitCompleted(t, store)

	if store.released == 0 {
		t.Fatal("stale claims were not released before resume")
	}
	_, enviados, falhas := store.snapshot()
	if enviados+falhas != 2 {
		t.Fatalf("enviados+falhas = %d, want 2", enviados+falhas)
	}
}

func TestSweepRecoversYoungClaims(t *testing.T) {
	// claim feito segundos antes do crash: jovem demais para a retomada do
	// boot, tem que ser recuperado pela varredura periódica
	store := newStore("5511999990001", "5511999990002")
	store.status = "sending"
	store.claimable = false
	store.recips[0].status = "sending"
	store.recips[0].claimedAt = time.Now()

	r := NewRunner(store, &fakeSender{},
		WithPacing(time.Millisecond, 4*time.Millisecond),
		WithClaimGrace(25*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	waitCompleted(t, store)

	_, enviados, falhas := store.snapshot()
	if enviados+falhas != 2 {
		t.Fatalf("enviados+falhas = %d, want 2", enviados+falhas)
	}
	for _, rec := range store.recips {
		if rec.status != "sent" {
			t.Fatalf("destinatario %s ficou em %s", rec.id, rec.status)
		}
	}
}

func TestNextDelay(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	if got := NextDelay(base, base, max, true); got != 200*time.Millisecond {
		t.Fatalf("backoff after 429 = %v, want 200ms", got)
	}
	if got := NextDelay(800*time.Millisecond, base, max, true); got != max {
		t.Fatalf("backoff capped = %v, want %v", got, max)
	}
	if got := NextDelay(max, base, max, true); got != max {
		t.Fatalf("backoff at cap = %v, want %v", got, max)
	}
	if got := NextDelay(400*time.Millisecond, base, max, false); got != 200*time.Millisecond {
		t.Fatalf("decay = %v, want 200ms", got)
	}
	if got := NextDelay(base, base, max, false); got != base {
		t.Fatalf("decay floor = %v, want %v", got, base)
	}
}
