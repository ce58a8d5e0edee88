package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dcadv789/scalazap/api/requests"
	"github.com/Dcadv789/scalazap/api/utils"
	"github.com/Dcadv789/scalazap/db"
)

type contatoResp struct {
	db.Contato
	UltimaMensagem     string     `json:"ultimaMensagem"`
	UltimaMensagemData *time.Time `json:"ultimaMensagemData,omitempty"`
}

// ListContacts devolve os contatos da empresa ordenados pela conversa mais
// recente, com a última mensagem de cada um.
func (s *Server) ListContacts(w http.ResponseWriter, r *http.Request) {
	auth := requests.GetAuth(r)
	rows, err := s.DB.Query(r.Context(), `
		SELECT *
		FROM (
			SELECT DISTINCT ON (c.id)
				c.id, c.id_empresa, c.telefone, c.nome, c.created_at,
				COALESCE(m.conteudo, '') AS ultima_mensagem,
				m.created_at AS ultima_mensagem_data
			FROM contatos c
			LEFT JOIN mensagens m ON c.id = m.id_contato
			WHERE c.id_empresa = $1
			ORDER BY c.id, m.created_at DESC
		) sub
		ORDER BY sub.ultima_mensagem_data DESC NULLS LAST`, auth.TenantID)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	contatos := []contatoResp{}
	for rows.Next() {
		var c contatoResp
		if err := rows.Scan(&c.ID, &c.IDEmpresa, &c.Telefone, &c.Nome, &c.CreatedAt,
			&c.UltimaMensagem, &c.UltimaMensagemData); err != nil {
			utils.HttpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		contatos = append(contatos, c)
	}
	utils.JsonOK(w, contatos)
}

// ListContactMessages pagina o histórico de um contato da empresa.
func (s *Server) ListContactMessages(w http.ResponseWriter, r *http.Request) {
	auth := requests.GetAuth(r)
	contatoID := chi.URLParam(r, "id")
	if contatoID == "" {
		utils.HttpError(w, http.StatusBadRequest, "contato id is required")
		return
	}

	page, limit := 1, 20
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	offset := (page - 1) * limit

	rows, err := s.DB.Query(r.Context(), `
		SELECT id, id_empresa, id_contato, COALESCE(id_conexao::text, ''), direcao, status, tipo,
		       conteudo, wa_message_id, media_url, created_at
		FROM mensagens
		WHERE id_empresa=$1 AND id_contato=$2
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4`,
		auth.TenantID, contatoID, limit, offset)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	mensagens := []db.Mensagem{}
	for rows.Next() {
		var m db.Mensagem
		if err := rows.Scan(&m.ID, &m.IDEmpresa, &m.IDContato, &m.IDConexao, &m.Direcao, &m.Status,
			&m.Tipo, &m.Conteudo, &m.WaMessageID, &m.MediaURL, &m.CreatedAt); err != nil {
			utils.HttpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		mensagens = append(mensagens, m)
	}

	var total int
	if err := s.DB.QueryRow(r.Context(),
		`SELECT COUNT(*) FROM mensagens WHERE id_empresa=$1 AND id_contato=$2`,
		auth.TenantID, contatoID).Scan(&total); err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.JsonOK(w, map[string]any{
		"page":  page,
		"limit": limit,
		"total": total,
		"data":  mensagens,
	})
}

// ListRecentMessages lista as últimas mensagens da empresa, qualquer contato.
func (s *Server) ListRecentMessages(w http.ResponseWriter, r *http.Request) {
	auth := requests.GetAuth(r)
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}

	rows, err := s.DB.Query(r.Context(), `
		SELECT id, id_empresa, id_contato, COALESCE(id_conexao::text, ''), direcao, status, tipo,
		       conteudo, wa_message_id, media_url, created_at
		FROM mensagens
		WHERE id_empresa=$1
		ORDER BY created_at DESC
		LIMIT $2`, auth.TenantID, limit)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	mensagens := []db.Mensagem{}
	for rows.Next() {
		var m db.Mensagem
		if err := rows.Scan(&m.ID, &m.IDEmpresa, &m.IDContato, &m.IDConexao, &m.Direcao, &m.Status,
			&m.Tipo, &m.Conteudo, &m.WaMessageID, &m.MediaURL, &m.CreatedAt); err != nil {
			utils.HttpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		mensagens = append(mensagens, m)
	}
	utils.JsonOK(w, mensagens)
}
