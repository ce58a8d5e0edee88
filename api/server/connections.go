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

type createConnectionReq struct {
	PhoneNumberID string `json:"phoneNumberId"`
	WabaID        string `json:"wabaId"`
	AccessToken   string `json:"accessToken"`
}

// CreateConnection registra um número do WhatsApp Business. O par
// (token, phone_number_id) é validado contra a Graph API antes de persistir.
func (s *Server) CreateConnection(w http.ResponseWriter, r *http.Request) {
	auth := requests.GetAuth(r)
	var req createConnectionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HttpError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.PhoneNumberID = strings.TrimSpace(req.PhoneNumberID)
	if req.PhoneNumberID == "" || req.AccessToken == "" {
		utils.HttpError(w, http.StatusBadRequest, "phoneNumberId and accessToken are required")
		return
	}

	info, err := s.Graph.GetPhoneNumber(r.Context(), req.AccessToken, req.PhoneNumberID)
	if err != nil {
		utils.HttpError(w, http.StatusBadGateway, "graph validation failed: "+err.Error())
		return
	}

	var c db.Conexao
	err = s.DB.QueryRow(r.Context(), `
		INSERT INTO conexoes (id_empresa, numero, phone_number_id, waba_id, access_token, status)
		VALUES ($1,$2,$3,$4,$5,'ativa')
		ON CONFLICT (phone_number_id) DO UPDATE
		SET access_token=EXCLUDED.access_token,
		    waba_id=EXCLUDED.waba_id,
		    numero=EXCLUDED.numero,
		    status='ativa'
		WHERE conexoes.id_empresa=EXCLUDED.id_empresa
		RETURNING id, id_empresa, numero, phone_number_id, waba_id, status, created_at`,
		auth.TenantID, info.DisplayPhoneNumber, req.PhoneNumberID, req.WabaID, req.AccessToken,
	).Scan(&c.ID, &c.IDEmpresa, &c.Numero, &c.PhoneNumberID, &c.WabaID, &c.Status, &c.CreatedAt)
	if err != nil {
		// conflito sem update => phone_number_id já pertence a outra empresa
		utils.HttpError(w, http.StatusConflict, "phone number already linked")
		return
	}

	log.Info().Str("empresa", auth.TenantID).Str("phoneNumberId", c.PhoneNumberID).Msg("connection linked")
	utils.JsonCreated(w, c)
}

func (s *Server) ListConnections(w http.ResponseWriter, r *http.Request) {
	auth := requests.GetAuth(r)
	rows, err := s.DB.Query(r.Context(), `
		SELECT id, id_empresa, numero, phone_number_id, waba_id, status, created_at
		FROM conexoes WHERE id_empresa=$1 ORDER BY created_at`, auth.TenantID)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	conns := []db.Conexao{}
	for rows.Next() {
		var c db.Conexao
		if err := rows.Scan(&c.ID, &c.IDEmpresa, &c.Numero, &c.PhoneNumberID, &c.WabaID, &c.Status, &c.CreatedAt); err != nil {
			utils.HttpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		conns = append(conns, c)
	}
	utils.JsonOK(w, conns)
}

func (s *Server) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	auth := requests.GetAuth(r)
	id := chi.URLParam(r, "id")
	tag, err := s.DB.Exec(r.Context(),
		`DELETE FROM conexoes WHERE id=$1 AND id_empresa=$2`, id, auth.TenantID)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tag.RowsAffected() == 0 {
		utils.HttpError(w, http.StatusNotFound, "connection not found")
		return
	}
	utils.JsonOK(w, map[string]string{"status": "deleted"})
}
