package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Dcadv789/scalazap/graph"
)

// Campaign é o que o worker precisa para enviar: template + credenciais da
// conexão dona da campanha.
type Campaign struct {
	ID            string
	TenantID      string
	Template      string
	Idioma        string
	PhoneNumberID string
	AccessToken   string
}

type Recipient struct {
	ID       string
	Telefone string
}

// Store é a fila durável: todo avanço de estado é persistido antes do
// próximo envio, então um crash nunca perde nem duplica destinatários.
type Store interface {
	// ClaimCampaign faz a transição draft->sending. ok=false quando a
	// campanha não existe, não é do tenant ou já foi disparada.
	ClaimCampaign(ctx context.Context, campaignID, tenantID string) (Campaign, bool, error)
	// StuckCampaigns lista campanhas deixadas em sending por um processo
	// anterior, para retomada no boot.
	StuckCampaigns(ctx context.Context) ([]Campaign, error)
	// ReleaseStaleClaims devolve para pending destinatários presos em
	// sending há mais tempo que o período de carência.
	ReleaseStaleClaims(ctx context.Context, campaignID string, olderThan time.Duration) error
	// NextPending reivindica exatamente um destinatário pendente
	// (pending->sending). ok=false quando não resta nenhum.
	NextPending(ctx context.Context, campaignID string) (Recipient, bool, error)
	MarkSent(ctx context.Context, campaignID, recipientID, waMessageID string) error
	MarkFailed(ctx context.Context, campaignID, recipientID, reason string) error
	// FinishIfDone fecha a campanha quando não há mais pending/sending.
	FinishIfDone(ctx context.Context, campaignID string) (bool, error)
}

type Sender interface {
	SendTemplate(ctx context.Context, token, phoneNumberID, to, template, lang string) (graph.SendResult, error)
}

type Runner struct {
	store      Store
	sender     Sender
	baseDelay  time.Duration
	maxDelay   time.Duration
	claimGrace time.Duration

	jobs chan Campaign
	wg   sync.WaitGroup
}

type Option func(*Runner)

func WithPacing(base, max time.Duration) Option {
	return func(r *Runner) { r.baseDelay, r.maxDelay = base, max }
}

func WithClaimGrace(d time.Duration) Option {
	return func(r *Runner) { r.claimGrace = d }
}

func NewRunner(store Store, sender Sender, opts ...Option) *Runner {
	r := &Runner{
		store:      store,
		sender:     sender,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   10 * time.Second,
		claimGrace: 2 * time.Minute,
		jobs:       make(chan Campaign, 64),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start sobe o worker e retoma campanhas interrompidas. Uma varredura
// periódica reenfileira campanhas presas em sending, então claims órfãos
// jovens demais para a retomada do boot são recuperados no tick seguinte.
// Cancelar o contexto para o worker entre destinatários; o estado
// persistido permite retomar.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-r.jobs:
				r.run(ctx, c)
			}
		}
	}()
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(r.claimGrace)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.resume(ctx)
			}
		}
	}()
	r.resume(ctx)
}

func (r *Runner) Wait() { r.wg.Wait() }

// Dispatch reivindica a campanha e a coloca na fila do worker. Retorna
// false quando a campanha já está em sending/completed (start duplicado).
func (r *Runner) Dispatch(ctx context.Context, campaignID, tenantID string) (bool, error) {
	c, ok, err := r.store.ClaimCampaign(ctx, campaignID, tenantID)
	if err != nil || !ok {
		return false, err
	}
	select {
	case r.jobs <- c:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return true, nil
}

func (r *Runner) resume(ctx context.Context) {
	stuck, err := r.store.StuckCampaigns(ctx)
	if err != nil {
		log.Error().Err(err).Msg("dispatch: resume scan failed")
		return
	}
	for _, c := range stuck {
		if err := r.store.ReleaseStaleClaims(ctx, c.ID, r.claimGrace); err != nil {
			log.Error().Err(err).Str("campanha", c.ID).Msg("dispatch: release claims failed")
			continue
		}
		select {
		case r.jobs <- c:
			log.Info().Str("campanha", c.ID).Msg("dispatch: resuming campaign")
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) run(ctx context.Context, c Campaign) {
	log.Info().Str("campanha", c.ID).Str("empresa", c.TenantID).Msg("dispatch: start")
	delay := r.baseDelay

	for {
		if ctx.Err() != nil {
			return
		}
		rec, ok, err := r.store.NextPending(ctx, c.ID)
		if err != nil {
			log.Error().Err(err).Str("campanha", c.ID).Msg("dispatch: claim recipient failed")
			return
		}
		if !ok {
			break
		}

		to := onlyDigits(rec.Telefone)
		res, sendErr := r.sender.SendTemplate(ctx, c.AccessToken, c.PhoneNumberID, to, c.Template, c.Idioma)

		if sendErr == nil && res.MessageID != "" {
			if err := r.store.MarkSent(ctx, c.ID, rec.ID, res.MessageID); err != nil {
				log.Error().Err(err).Str("destinatario", rec.ID).Msg("dispatch: mark sent failed")
			}
		} else {
			reason := "no message id in response"
			if sendErr != nil {
				reason = sendErr.Error()
			}
			if err := r.store.MarkFailed(ctx, c.ID, rec.ID, reason); err != nil {
				log.Error().Err(err).Str("destinatario", rec.ID).Msg("dispatch: mark failed failed")
			}
			log.Warn().Str("campanha", c.ID).Str("para", to).Str("motivo", reason).Msg("dispatch: send failed")
		}

		delay = NextDelay(delay, r.baseDelay, r.maxDelay, res.RateLimited)
		if !sleep(ctx, delay) {
			return
		}
	}

	done, err := r.store.FinishIfDone(ctx, c.ID)
	if err != nil {
		log.Error().Err(err).Str("campanha", c.ID).Msg("dispatch: finish failed")
		return
	}
	if done {
		log.Info().Str("campanha", c.ID).Msg("dispatch: completed")
		return
	}
	// restam destinatários em sending (claims de outro processo); a campanha
	// continua em sending e a varredura volta nela após o período de carência
	log.Warn().Str("campanha", c.ID).Msg("dispatch: recipients still claimed, will retry after grace")
}

// NextDelay dobra o intervalo após um rate limit da Graph API e decai de
// volta ao ritmo base depois de envios bem-sucedidos.
func NextDelay(current, base, max time.Duration, rateLimited bool) time.Duration {
	if rateLimited {
		next := current * 2
		if next > max {
			return max
		}
		return next
	}
	next := current / 2
	if next < base {
		return base
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
