package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Dcadv789/scalazap/api/requests"
	"github.com/Dcadv789/scalazap/api/utils"
	"github.com/Dcadv789/scalazap/db"
	"github.com/Dcadv789/scalazap/ws"
)

type sendMessageReq struct {
	ContatoID string `json:"contatoId"`
	Telefone  string `json:"telefone"` // alternativa ao contatoId; cria o contato
	ConexaoID string `json:"conexaoId"`
	Texto     string `json:"texto"`
}

// SendMessage envia um texto avulso pela conexão da empresa e grava a
// mensagem de saída com o status retornado pela Graph API.
func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	auth := requests.GetAuth(r)
	var req sendMessageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HttpError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.Texto) == "" {
		utils.HttpError(w, http.StatusBadRequest, "texto is required")
		return
	}
	if req.ContatoID == "" && utils.OnlyDigits(req.Telefone) == "" {
		utils.HttpError(w, http.StatusBadRequest, "contatoId or telefone is required")
		return
	}

	// contato: por id ou upsert por telefone
	var contato db.Contato
	if req.ContatoID != "" {
		err := s.DB.QueryRow(r.Context(),
			`SELECT id, id_empresa, telefone, nome, created_at FROM contatos WHERE id=$1 AND id_empresa=$2`,
			req.ContatoID, auth.TenantID).
			Scan(&contato.ID, &contato.IDEmpresa, &contato.Telefone, &contato.Nome, &contato.CreatedAt)
		if err != nil {
			utils.HttpError(w, http.StatusNotFound, "contato not found")
			return
		}
	} else {
		telefone := utils.OnlyDigits(req.Telefone)
		err := s.DB.QueryRow(r.Context(), `
			INSERT INTO contatos (id_empresa, telefone) VALUES ($1,$2)
			ON CONFLICT (telefone, id_empresa) DO UPDATE SET telefone=EXCLUDED.telefone
			RETURNING id, id_empresa, telefone, nome, created_at`,
			auth.TenantID, telefone).
			Scan(&contato.ID, &contato.IDEmpresa, &contato.Telefone, &contato.Nome, &contato.CreatedAt)
		if err != nil {
			utils.HttpError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	// conexão: por id ou a primeira ativa da empresa
	var conn db.Conexao
	query := `SELECT id, phone_number_id, access_token FROM conexoes WHERE id_empresa=$1 AND status='ativa'`
	args := []any{auth.TenantID}
	if req.ConexaoID != "" {
		query += ` AND id=$2`
		args = append(args, req.ConexaoID)
	}
	query += ` ORDER BY created_at LIMIT 1`
	if err := s.DB.QueryRow(r.Context(), query, args...).Scan(&conn.ID, &conn.PhoneNumberID, &conn.AccessToken); err != nil {
		utils.HttpError(w, http.StatusBadRequest, "no active connection for empresa")
		return
	}

	res, sendErr := s.Graph.SendText(r.Context(), conn.AccessToken, conn.PhoneNumberID,
		utils.OnlyDigits(contato.Telefone), req.Texto)

	status := "enviado"
	var waID *string
	if sendErr != nil || res.MessageID == "" {
		status = "falha"
		log.Warn().Err(sendErr).Str("empresa", auth.TenantID).Str("contato", contato.ID).Msg("send failed")
	} else {
		waID = &res.MessageID
	}

	var m db.Mensagem
	err := s.DB.QueryRow(r.Context(), `
		INSERT INTO mensagens (id_empresa, id_contato, id_conexao, direcao, status, tipo, conteudo, wa_message_id)
		VALUES ($1,$2,$3,'saida',$4,'text',$5,$6)
		RETURNING id, id_empresa, id_contato, COALESCE(id_conexao::text, ''), direcao, status, tipo, conteudo, wa_message_id, media_url, created_at`,
		auth.TenantID, contato.ID, conn.ID, status, req.Texto, waID).
		Scan(&m.ID, &m.IDEmpresa, &m.IDContato, &m.IDConexao, &m.Direcao, &m.Status, &m.Tipo,
			&m.Conteudo, &m.WaMessageID, &m.MediaURL, &m.CreatedAt)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.Hub.Broadcast(ws.BroadcastOpts{EmpresaID: auth.TenantID}, map[string]any{
		"type": "message.sent",
		"data": m,
	})

	if status == "falha" {
		utils.HttpError(w, http.StatusBadGateway, "message not accepted by graph")
		return
	}
	utils.JsonCreated(w, m)
}
