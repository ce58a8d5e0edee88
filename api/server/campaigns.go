package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Dcadv789/scalazap/api/requests"
	"github.com/Dcadv789/scalazap/api/utils"
	"github.com/Dcadv789/scalazap/db"
)

type createCampaignReq struct {
	Nome          string `json:"nome"`
	Template      string `json:"template"`
	Idioma        string `json:"idioma"`
	ConexaoID     string `json:"conexaoId"`
	Destinatarios []struct {
		Telefone string `json:"telefone"`
		Nome     string `json:"nome"`
	} `json:"destinatarios"`
}

// CreateCampaign grava a campanha em draft com todos os destinatários em
// pending. O envio só acontece no start.
func (s *Server) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	auth := requests.GetAuth(r)
	var req createCampaignReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HttpError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Nome = strings.TrimSpace(req.Nome)
	req.Template = strings.TrimSpace(req.Template)
	if req.Nome == "" || req.Template == "" || req.ConexaoID == "" {
		utils.HttpError(w, http.StatusBadRequest, "nome, template and conexaoId are required")
		return
	}
	if req.Idioma == "" {
		req.Idioma = "pt_BR"
	}
	if len(req.Destinatarios) == 0 {
		utils.HttpError(w, http.StatusBadRequest, "destinatarios is empty")
		return
	}

	// conexão tem que ser da empresa
	var connOK bool
	if err := s.DB.QueryRow(r.Context(),
		`SELECT EXISTS(SELECT 1 FROM conexoes WHERE id=$1 AND id_empresa=$2)`,
		req.ConexaoID, auth.TenantID).Scan(&connOK); err != nil || !connOK {
		utils.HttpError(w, http.StatusBadRequest, "conexao not found for empresa")
		return
	}

	// dedupe por telefone normalizado
	seen := map[string]bool{}
	type dest struct{ telefone, nome string }
	dests := make([]dest, 0, len(req.Destinatarios))
	for _, d := range req.Destinatarios {
		tel := utils.OnlyDigits(d.Telefone)
		if tel == "" || seen[tel] {
			continue
		}
		seen[tel] = true
		dests = append(dests, dest{telefone: tel, nome: strings.TrimSpace(d.Nome)})
	}
	if len(dests) == 0 {
		utils.HttpError(w, http.StatusBadRequest, "no valid telefone in destinatarios")
		return
	}

	tx, err := s.DB.Begin(r.Context())
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Rollback(r.Context())

	var c db.Campanha
	if err := tx.QueryRow(r.Context(), `
		INSERT INTO campanhas (id_empresa, id_conexao, nome, template, idioma, status, total)
		VALUES ($1,$2,$3,$4,$5,'draft',$6)
		RETURNING id, id_empresa, id_conexao, nome, template, idioma, status, total, enviados, falhas, created_at`,
		auth.TenantID, req.ConexaoID, req.Nome, req.Template, req.Idioma, len(dests)).
		Scan(&c.ID, &c.IDEmpresa, &c.IDConexao, &c.Nome, &c.Template, &c.Idioma, &c.Status,
			&c.Total, &c.Enviados, &c.Falhas, &c.CreatedAt); err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, d := range dests {
		if _, err := tx.Exec(r.Context(), `
			INSERT INTO destinatarios (id_campanha, id_empresa, telefone, nome, status)
			VALUES ($1,$2,$3,$4,'pending')`,
			c.ID, auth.TenantID, d.telefone, d.nome); err != nil {
			utils.HttpError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if err := tx.Commit(r.Context()); err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("campanha", c.ID).Str("empresa", auth.TenantID).Int("total", c.Total).Msg("campaign created")
	utils.JsonCreated(w, c)
}

func (s *Server) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	auth := requests.GetAuth(r)
	rows, err := s.DB.Query(r.Context(), `
		SELECT id, id_empresa, id_conexao, nome, template, idioma, status, total, enviados, falhas,
		       started_at, finished_at, created_at
		FROM campanhas WHERE id_empresa=$1 ORDER BY created_at DESC`, auth.TenantID)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	campanhas := []db.Campanha{}
	for rows.Next() {
		var c db.Campanha
		if err := rows.Scan(&c.ID, &c.IDEmpresa, &c.IDConexao, &c.Nome, &c.Template, &c.Idioma,
			&c.Status, &c.Total, &c.Enviados, &c.Falhas, &c.StartedAt, &c.FinishedAt, &c.CreatedAt); err != nil {
			utils.HttpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		campanhas = append(campanhas, c)
	}
	utils.JsonOK(w, campanhas)
}

func (s *Server) GetCampaign(w http.ResponseWriter, r *http.Request) {
	auth := requests.GetAuth(r)
	id := chi.URLParam(r, "id")

	var c db.Campanha
	err := s.DB.QueryRow(r.Context(), `
		SELECT id, id_empresa, id_conexao, nome, template, idioma, status, total, enviados, falhas,
		       started_at, finished_at, created_at
		FROM campanhas WHERE id=$1 AND id_empresa=$2`, id, auth.TenantID).
		Scan(&c.ID, &c.IDEmpresa, &c.IDConexao, &c.Nome, &c.Template, &c.Idioma,
			&c.Status, &c.Total, &c.Enviados, &c.Falhas, &c.StartedAt, &c.FinishedAt, &c.CreatedAt)
	if err != nil {
		utils.HttpError(w, http.StatusNotFound, "campanha not found")
		return
	}

	rows, err := s.DB.Query(r.Context(), `
		SELECT id, id_campanha, id_empresa, telefone, nome, status, wa_message_id, erro, sent_at
		FROM destinatarios WHERE id_campanha=$1 ORDER BY telefone`, c.ID)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	dests := []db.Destinatario{}
	for rows.Next() {
		var d db.Destinatario
		if err := rows.Scan(&d.ID, &d.IDCampanha, &d.IDEmpresa, &d.Telefone, &d.Nome, &d.Status,
			&d.WaMessageID, &d.Erro, &d.SentAt); err != nil {
			utils.HttpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		dests = append(dests, d)
	}

	utils.JsonOK(w, map[string]any{"campanha": c, "destinatarios": dests})
}

// StartCampaign reivindica a campanha (draft -> sending) e entrega ao
// worker. Start duplicado, campanha de outra empresa ou já disparada
// respondem 409.
func (s *Server) StartCampaign(w http.ResponseWriter, r *http.Request) {
	auth := requests.GetAuth(r)
	id := chi.URLParam(r, "id")

	ok, err := s.Runner.Dispatch(r.Context(), id, auth.TenantID)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		utils.HttpError(w, http.StatusConflict, "campanha not startable (already sending, completed or not found)")
		return
	}
	utils.JsonOK(w, map[string]string{"status": "sending"})
}
