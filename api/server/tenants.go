package server

import (
	"net/http"

	"github.com/Dcadv789/scalazap/api/requests"
	"github.com/Dcadv789/scalazap/api/utils"
	"github.com/Dcadv789/scalazap/db"
)

// ListMembers lista os membros da empresa ativa com nome/email do perfil.
func (s *Server) ListMembers(w http.ResponseWriter, r *http.Request) {
	auth := requests.GetAuth(r)
	rows, err := s.DB.Query(r.Context(), `
		SELECT m.id, m.id_perfil, m.id_empresa, m.funcao, m.eh_superadmin, m.created_at, p.nome, p.email
		FROM membros m
		JOIN perfis p ON p.id = m.id_perfil
		WHERE m.id_empresa = $1
		ORDER BY m.created_at`, auth.TenantID)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	type membroResp struct {
		db.Membro
		Nome  string `json:"nome"`
		Email string `json:"email"`
	}
	membros := []membroResp{}
	for rows.Next() {
		var m membroResp
		if err := rows.Scan(&m.ID, &m.IDPerfil, &m.IDEmpresa, &m.Funcao, &m.EhSuperadmin,
			&m.CreatedAt, &m.Nome, &m.Email); err != nil {
			utils.HttpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		membros = append(membros, m)
	}
	utils.JsonOK(w, membros)
}

// ListEmpresas é visão de superadmin: todas as empresas com plano e status.
func (s *Server) ListEmpresas(w http.ResponseWriter, r *http.Request) {
	rows, err := s.DB.Query(r.Context(), `
		SELECT id, nome, status_assinatura, id_plano, created_at
		FROM empresas ORDER BY created_at`)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	empresas := []db.Empresa{}
	for rows.Next() {
		var e db.Empresa
		if err := rows.Scan(&e.ID, &e.Nome, &e.StatusAssinatura, &e.IDPlano, &e.CreatedAt); err != nil {
			utils.HttpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		empresas = append(empresas, e)
	}
	utils.JsonOK(w, empresas)
}
