package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dcadv789/scalazap/api/requests"
	"github.com/Dcadv789/scalazap/api/utils"
)

const sessionTTL = 24 * time.Hour

type registerReq struct {
	Nome    string `json:"nome"`
	Email   string `json:"email"`
	Senha   string `json:"senha"`
	Empresa string `json:"empresa"`
}

type sessionResp struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
	PerfilID  string `json:"perfilId"`
	EmpresaID string `json:"empresaId"`
	MembroID  string `json:"membroId"`
	Funcao    string `json:"funcao"`
}

// Register cria perfil + empresa + membro admin em uma transação.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HttpError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Nome = strings.TrimSpace(req.Nome)
	req.Empresa = strings.TrimSpace(req.Empresa)
	if req.Nome == "" || req.Email == "" || req.Senha == "" || req.Empresa == "" {
		utils.HttpError(w, http.StatusBadRequest, "nome, email, senha and empresa are required")
		return
	}

	var exists bool
	if err := s.DB.QueryRow(r.Context(),
		`SELECT EXISTS(SELECT 1 FROM perfis WHERE LOWER(email)=LOWER($1))`, req.Email).Scan(&exists); err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if exists {
		utils.HttpError(w, http.StatusConflict, "email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Senha), bcrypt.DefaultCost)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, "hash error")
		return
	}

	tx, err := s.DB.Begin(r.Context())
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Rollback(r.Context())

	var perfilID, empresaID, membroID string
	if err := tx.QueryRow(r.Context(),
		`INSERT INTO perfis (nome, email, senha_hash) VALUES ($1,$2,$3) RETURNING id`,
		req.Nome, req.Email, string(hash)).Scan(&perfilID); err != nil {
		// o EXISTS acima corre contra registros concorrentes; a constraint
		// única decide
		if isUniqueViolation(err) {
			utils.HttpError(w, http.StatusConflict, "email already registered")
			return
		}
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := tx.QueryRow(r.Context(),
		`INSERT INTO empresas (nome) VALUES ($1) RETURNING id`, req.Empresa).Scan(&empresaID); err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := tx.QueryRow(r.Context(),
		`INSERT INTO membros (id_perfil, id_empresa, funcao) VALUES ($1,$2,'admin') RETURNING id`,
		perfilID, empresaID).Scan(&membroID); err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	token, exp, err := s.Tokens.Sign(perfilID, req.Email, sessionTTL)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, "jwt error")
		return
	}

	log.Info().Str("perfil", perfilID).Str("empresa", empresaID).Msg("new tenant registered")
	utils.JsonCreated(w, sessionResp{
		Token: token, ExpiresAt: exp.Unix(),
		PerfilID: perfilID, EmpresaID: empresaID, MembroID: membroID, Funcao: "admin",
	})
}

type loginReq struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HttpError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	var perfilID, hash string
	err := s.DB.QueryRow(r.Context(),
		`SELECT id, senha_hash FROM perfis WHERE LOWER(email)=LOWER($1)`, req.Email).
		Scan(&perfilID, &hash)
	if err == pgx.ErrNoRows || (err == nil && bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Senha)) != nil) {
		utils.HttpError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	membros, err := s.loadMemberships(r.Context(), perfilID)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(membros) == 0 {
		utils.HttpError(w, http.StatusUnauthorized, "profile has no empresa")
		return
	}

	token, exp, err := s.Tokens.Sign(perfilID, req.Email, sessionTTL)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, "jwt error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name: "sz_session", Value: token, Path: "/",
		Expires: exp, HttpOnly: true, SameSite: http.SameSiteLaxMode,
	})
	utils.JsonOK(w, map[string]any{
		"token":     token,
		"expiresAt": exp.Unix(),
		"perfilId":  perfilID,
		"membros":   membros,
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Me devolve a associação resolvida para esta request.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	auth := requests.GetAuth(r)
	if auth == nil {
		utils.HttpError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var nome, email string
	if err := s.DB.QueryRow(r.Context(),
		`SELECT nome, email FROM perfis WHERE id=$1`, auth.Membro.IDPerfil).Scan(&nome, &email); err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JsonOK(w, map[string]any{
		"perfilId":     auth.Membro.IDPerfil,
		"nome":         nome,
		"email":        email,
		"empresaId":    auth.TenantID,
		"membroId":     auth.Membro.ID,
		"funcao":       auth.Membro.Funcao,
		"ehSuperadmin": auth.IsSuperAdmin,
	})
}
