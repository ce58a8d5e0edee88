package tracking

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Notifier envia eventos de conversão para as APIs de anúncio (Facebook
// CAPI, Google Measurement Protocol, TikTok Events). Envio é best-effort:
// falha é logada, nunca propaga para o fluxo de pagamento.
type Notifier struct {
	cfg  Config
	db   *pgxpool.Pool
	http *http.Client

	// endpoints sobrescritos em teste
	facebookURL string
	googleURL   string
	tiktokURL   string
}

type Config struct {
	FacebookPixelID     string
	FacebookAccessToken string
	GoogleMeasurementID string
	GoogleAPISecret     string
	TikTokPixelID       string
	TikTokAccessToken   string
}

func New(cfg Config, db *pgxpool.Pool) *Notifier {
	return &Notifier{
		cfg:         cfg,
		db:          db,
		http:        &http.Client{Timeout: 10 * time.Second},
		facebookURL: fmt.Sprintf("https://graph.facebook.com/v20.0/%s/events?access_token=%s", cfg.FacebookPixelID, cfg.FacebookAccessToken),
		googleURL:   fmt.Sprintf("https://www.google-analytics.com/mp/collect?measurement_id=%s&api_secret=%s", cfg.GoogleMeasurementID, cfg.GoogleAPISecret),
		tiktokURL:   "https://business-api.tiktok.com/open_api/v1.3/event/track/",
	}
}

// Purchase dispara um evento de compra para cada provedor configurado e
// registra o resultado em eventos_conversao.
func (n *Notifier) Purchase(ctx context.Context, empresaID, email string, valorCentavos int64) {
	now := time.Now()

	if n.cfg.FacebookPixelID != "" && n.cfg.FacebookAccessToken != "" {
		payload := FacebookPurchase(email, valorCentavos, now)
		n.deliver(ctx, empresaID, "facebook", "Purchase", n.facebookURL, nil, payload)
	}
	if n.cfg.GoogleMeasurementID != "" && n.cfg.GoogleAPISecret != "" {
		payload := GooglePurchase(empresaID, valorCentavos)
		n.deliver(ctx, empresaID, "google", "purchase", n.googleURL, nil, payload)
	}
	if n.cfg.TikTokPixelID != "" && n.cfg.TikTokAccessToken != "" {
		payload := TikTokPurchase(n.cfg.TikTokPixelID, email, valorCentavos, now)
		headers := map[string]string{"Access-Token": n.cfg.TikTokAccessToken}
		n.deliver(ctx, empresaID, "tiktok", "CompletePayment", n.tiktokURL, headers, payload)
	}
}

func (n *Notifier) deliver(ctx context.Context, empresaID, provedor, evento, url string, headers map[string]string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("provedor", provedor).Msg("tracking: marshal failed")
		return
	}

	enviado := false
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err == nil {
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, doErr := n.http.Do(req)
		if doErr != nil {
			log.Warn().Err(doErr).Str("provedor", provedor).Msg("tracking: delivery failed")
		} else {
			enviado = resp.StatusCode >= 200 && resp.StatusCode < 300
			resp.Body.Close()
			if !enviado {
				log.Warn().Int("status", resp.StatusCode).Str("provedor", provedor).Msg("tracking: non-2xx")
			}
		}
	}

	if n.db != nil {
		if _, err := n.db.Exec(ctx, `
			INSERT INTO eventos_conversao (id_empresa, provedor, evento, payload, enviado)
			VALUES ($1, $2, $3, $4, $5)`,
			empresaID, provedor, evento, json.RawMessage(body), enviado); err != nil {
			log.Error().Err(err).Str("provedor", provedor).Msg("tracking: persist failed")
		}
	}
}

// HashEmail aplica o SHA-256 exigido pela Meta/TikTok em dados de usuário.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

func FacebookPurchase(email string, valorCentavos int64, ts time.Time) map[string]any {
	return map[string]any{
		"data": []map[string]any{{
			"event_name":    "Purchase",
			"event_time":    ts.Unix(),
			"action_source": "system_generated",
			"user_data": map[string]any{
				"em": []string{HashEmail(email)},
			},
			"custom_data": map[string]any{
				"currency": "BRL",
				"value":    float64(valorCentavos) / 100,
			},
		}},
	}
}

func GooglePurchase(clientID string, valorCentavos int64) map[string]any {
	return map[string]any{
		"client_id": clientID,
		"events": []map[string]any{{
			"name": "purchase",
			"params": map[string]any{
				"currency": "BRL",
				"value":    float64(valorCentavos) / 100,
			},
		}},
	}
}

func TikTokPurchase(pixelID, email string, valorCentavos int64, ts time.Time) map[string]any {
	return map[string]any{
		"event_source":    "web",
		"event_source_id": pixelID,
		"data": []map[string]any{{
			"event":      "CompletePayment",
			"event_time": ts.Unix(),
			"user": map[string]any{
				"email": HashEmail(email),
			},
			"properties": map[string]any{
				"currency": "BRL",
				"value":    float64(valorCentavos) / 100,
			},
		}},
	}
}
