package server

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Dcadv789/scalazap/api/utils"
	"github.com/Dcadv789/scalazap/db"
	"github.com/Dcadv789/scalazap/graph"
	"github.com/Dcadv789/scalazap/ws"
)

// WebhookVerify implementa o handshake de verificação da Meta: ecoa o
// hub.challenge quando mode e verify_token conferem.
func (s *Server) WebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && token != "" && token == s.VerifyToken {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}
	utils.HttpError(w, http.StatusForbidden, "verification failed")
}

// WebhookReceive ingere o POST da Meta. O corpo bruto é persistido antes de
// qualquer parsing; erro em um item nunca interrompe os demais; a resposta
// é sempre 200, porque a Meta desativa a assinatura após falhas repetidas.
func (s *Server) WebhookReceive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		// ainda assim 200: nada a reprocessar
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("EVENT_RECEIVED"))
		return
	}
	defer r.Body.Close()

	if err := s.Ingest.LogRaw(r.Context(), "meta", body); err != nil {
		log.Error().Err(err).Msg("webhook: raw log insert failed")
	}

	payload, err := graph.ParseWebhook(body)
	if err != nil {
		log.Warn().Err(err).Msg("webhook: unparseable payload")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("EVENT_RECEIVED"))
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			s.ingestChange(r.Context(), change.Value)
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("EVENT_RECEIVED"))
}

func (s *Server) ingestChange(ctx context.Context, v graph.Value) {
	if len(v.Messages) == 0 && len(v.Statuses) == 0 {
		return
	}
	conn, ok, err := s.Ingest.ConnectionByPhoneNumberID(ctx, v.Metadata.PhoneNumberID)
	if err != nil {
		log.Error().Err(err).Str("phoneNumberId", v.Metadata.PhoneNumberID).Msg("webhook: connection lookup failed")
		return
	}
	if !ok {
		log.Warn().Str("phoneNumberId", v.Metadata.PhoneNumberID).Msg("webhook: unknown phone number id")
		return
	}

	for _, msg := range v.Messages {
		if err := s.ingestMessage(ctx, conn, v, msg); err != nil {
			log.Error().Err(err).Str("waMessageId", msg.ID).Msg("webhook: message ingest failed")
		}
	}
	for _, st := range v.Statuses {
		if err := s.applyStatus(ctx, conn.IDEmpresa, st); err != nil {
			log.Error().Err(err).Str("waMessageId", st.ID).Msg("webhook: status update failed")
		}
	}
}

func (s *Server) ingestMessage(ctx context.Context, conn db.Conexao, v graph.Value, msg graph.InboundMessage) error {
	contatoID, err := s.Ingest.UpsertContato(ctx, conn.IDEmpresa, msg.From, contactName(v, msg.From))
	if err != nil {
		return err
	}

	var mediaURL *string
	if media := msg.MediaPart(); media != nil && s.Media != nil {
		if loc, err := s.archiveMedia(ctx, conn, media); err != nil {
			log.Warn().Err(err).Str("mediaId", media.ID).Msg("webhook: media archive failed")
		} else {
			mediaURL = &loc
		}
	}

	waID := msg.ID
	m, err := s.Ingest.InsertInbound(ctx, db.Mensagem{
		IDEmpresa:   conn.IDEmpresa,
		IDContato:   contatoID,
		IDConexao:   conn.ID,
		Tipo:        msg.Kind(),
		Conteudo:    msg.Content(),
		WaMessageID: &waID,
		MediaURL:    mediaURL,
	})
	if err != nil {
		return err
	}

	s.Hub.Broadcast(ws.BroadcastOpts{EmpresaID: conn.IDEmpresa}, map[string]any{
		"type": "message.received",
		"data": m,
	})
	return nil
}

func (s *Server) archiveMedia(ctx context.Context, conn db.Conexao, media *graph.Media) (string, error) {
	url, mime, err := s.Graph.MediaURL(ctx, conn.AccessToken, media.ID)
	if err != nil {
		return "", err
	}
	body, size, err := s.Graph.DownloadMedia(ctx, conn.AccessToken, url)
	if err != nil {
		return "", err
	}
	defer body.Close()
	object := conn.IDEmpresa + "/" + uuid.NewString()
	if media.Filename != "" {
		object += "-" + media.Filename
	}
	return s.Media.Save(ctx, object, mime, body, size)
}

func (s *Server) applyStatus(ctx context.Context, empresaID string, st graph.MessageStatus) error {
	status, ok := MapMetaStatus(st.Status)
	if !ok {
		return nil
	}
	return s.Ingest.AdvanceOutboundStatus(ctx, empresaID, st.ID, status)
}

// MapMetaStatus traduz o status da Cloud API para o modelo de mensagem.
func MapMetaStatus(metaStatus string) (string, bool) {
	switch metaStatus {
	case "sent":
		return "enviado", true
	case "delivered":
		return "entregue", true
	case "read":
		return "lido", true
	case "failed":
		return "falha", true
	default:
		return "", false
	}
}

// MessageStatusRank ordena os status de saída. Os statuses da Meta chegam
// fora de ordem; um update só é aplicado quando sobe no rank.
func MessageStatusRank(status string) int {
	switch status {
	case "enviado":
		return 1
	case "entregue":
		return 2
	case "lido":
		return 3
	case "falha":
		return 4
	default:
		return 0
	}
}

func contactName(v graph.Value, waID string) string {
	for _, c := range v.Contacts {
		if c.WaID == waID {
			return c.Profile.Name
		}
	}
	return ""
}
