package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/Dcadv789/scalazap/api/utils"
)

// PaymentEvent é a forma normalizada dos webhooks de pagamento. Cada
// provedor tem seu payload; todos viram isto antes de tocar o banco.
type PaymentEvent struct {
	Provedor      string
	Evento        string
	Email         string
	Referencia    string
	ValorCentavos int64
}

var errUnknownProvider = errors.New("unknown payment provider")

// ParsePaymentEvent decodifica o corpo cru de cada provedor suportado.
func ParsePaymentEvent(provedor string, body []byte) (PaymentEvent, error) {
	switch provedor {
	case "kirvano":
		var p struct {
			Event    string `json:"event"`
			SaleID   string `json:"sale_id"`
			Customer struct {
				Email string `json:"email"`
			} `json:"customer"`
			TotalPriceCents int64 `json:"total_price_cents"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return PaymentEvent{}, err
		}
		return PaymentEvent{
			Provedor: provedor, Evento: p.Event, Email: p.Customer.Email,
			Referencia: p.SaleID, ValorCentavos: p.TotalPriceCents,
		}, nil
	case "efi":
		var p struct {
			Evento string `json:"evento"`
			Email  string `json:"email"`
			TxID   string `json:"txid"`
			Valor  int64  `json:"valor_centavos"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return PaymentEvent{}, err
		}
		return PaymentEvent{
			Provedor: provedor, Evento: p.Evento, Email: p.Email,
			Referencia: p.TxID, ValorCentavos: p.Valor,
		}, nil
	case "pagarme":
		var p struct {
			Type string `json:"type"`
			Data struct {
				ID       string `json:"id"`
				Amount   int64  `json:"amount"`
				Customer struct {
					Email string `json:"email"`
				} `json:"customer"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return PaymentEvent{}, err
		}
		return PaymentEvent{
			Provedor: provedor, Evento: p.Type, Email: p.Data.Customer.Email,
			Referencia: p.Data.ID, ValorCentavos: p.Data.Amount,
		}, nil
	default:
		return PaymentEvent{}, errUnknownProvider
	}
}

// MapPaymentStatus traduz o evento do provedor para o status de assinatura
// da empresa. ok=false quando o evento não muda assinatura (ex.: pix
// gerado, boleto emitido).
func MapPaymentStatus(evento string) (string, bool) {
	e := strings.ToLower(evento)
	switch {
	case strings.Contains(e, "refused"), strings.Contains(e, "refund"),
		strings.Contains(e, "chargeback"), strings.Contains(e, "failed"),
		strings.Contains(e, "falhou"), strings.Contains(e, "devolvida"):
		return "inadimplente", true
	case strings.Contains(e, "canceled"), strings.Contains(e, "cancelled"),
		strings.Contains(e, "cancelada"):
		return "cancelada", true
	case strings.Contains(e, "approved"), strings.Contains(e, "paid"),
		strings.Contains(e, "confirmada"), strings.Contains(e, "pago"),
		strings.Contains(e, "paga"):
		return "ativa", true
	default:
		return "", false
	}
}

// PaymentWebhook recebe notificações de Kirvano/EFI/Pagar.me: valida o
// segredo compartilhado, registra o corpo cru, normaliza o evento, grava a
// fatura e ajusta o status de assinatura da empresa dona do email pagador.
func (s *Server) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	provedor := chi.URLParam(r, "provedor")
	secret, ok := s.WebhookSecrets[provedor]
	if !ok {
		utils.HttpError(w, http.StatusNotFound, "unknown provider")
		return
	}
	if secret != "" && r.Header.Get("X-Webhook-Secret") != secret {
		utils.HttpError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		utils.HttpError(w, http.StatusBadRequest, "read error")
		return
	}
	defer r.Body.Close()

	if _, err := s.DB.Exec(r.Context(),
		`INSERT INTO webhook_logs (origem, payload) VALUES ($1, $2)`,
		provedor, json.RawMessage(body)); err != nil {
		log.Error().Err(err).Str("provedor", provedor).Msg("billing: raw log insert failed")
	}

	event, err := ParsePaymentEvent(provedor, body)
	if err != nil {
		utils.HttpError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	// empresa dona do email pagador: primeira associação admin do perfil
	var empresaID string
	err = s.DB.QueryRow(r.Context(), `
		SELECT m.id_empresa
		FROM perfis p
		JOIN membros m ON m.id_perfil = p.id
		WHERE LOWER(p.email) = LOWER($1)
		ORDER BY (m.funcao <> 'admin'), m.created_at
		LIMIT 1`, event.Email).Scan(&empresaID)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Warn().Str("provedor", provedor).Str("email", event.Email).Msg("billing: no empresa for payer email")
		// 200 para o provedor não reenfileirar
		utils.JsonOK(w, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := s.DB.Exec(r.Context(), `
		INSERT INTO faturas (id_empresa, provedor, evento, referencia, valor_centavos, payload)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		empresaID, provedor, event.Evento, event.Referencia, event.ValorCentavos,
		json.RawMessage(body)); err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status, changes := MapPaymentStatus(event.Evento)
	if changes {
		if _, err := s.DB.Exec(r.Context(),
			`UPDATE empresas SET status_assinatura=$2 WHERE id=$1`, empresaID, status); err != nil {
			utils.HttpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		log.Info().Str("empresa", empresaID).Str("status", status).Str("provedor", provedor).Msg("billing: subscription updated")

		if status == "ativa" {
			s.trackPurchaseAsync(r.Context(), empresaID, event.Email, event.ValorCentavos)
		}
	}

	utils.JsonOK(w, map[string]string{"status": "ok"})
}

// trackPurchaseAsync solta o evento de conversão fora do ciclo da request:
// as APIs de anúncio podem levar segundos e o provedor de pagamento
// reenvia o webhook quando a resposta estoura o timeout dele.
func (s *Server) trackPurchaseAsync(ctx context.Context, empresaID, email string, valorCentavos int64) {
	if s.Tracker == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		s.Tracker.Purchase(ctx, empresaID, email, valorCentavos)
	}()
}
