package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Dcadv789/scalazap/api/utils"
	"github.com/Dcadv789/scalazap/db"
)

// PlanInput aceita os tipos frouxos que o painel envia (número ou string
// para preço, bool ou "true"/"1" para ativo) e normaliza antes de persistir,
// para que POST seguido de GET devolva exatamente os mesmos valores.
type PlanInput struct {
	Nome            string `json:"nome"`
	Preco           any    `json:"preco"` // reais; number ou string
	LimiteMensagens any    `json:"limiteMensagens"`
	LimiteConexoes  any    `json:"limiteConexoes"`
	Ativo           any    `json:"ativo"`
}

type planNormalized struct {
	Nome            string
	PrecoCentavos   int64
	LimiteMensagens int
	LimiteConexoes  int
	Ativo           bool
}

func NormalizePlan(in PlanInput) (planNormalized, error) {
	out := planNormalized{Nome: strings.TrimSpace(in.Nome), Ativo: true, LimiteConexoes: 1}
	if out.Nome == "" {
		return out, errors.New("nome is required")
	}

	reais, err := coerceFloat(in.Preco)
	if err != nil {
		return out, errors.New("preco must be numeric")
	}
	if reais < 0 {
		return out, errors.New("preco must be >= 0")
	}
	out.PrecoCentavos = int64(math.Round(reais * 100))

	if out.LimiteMensagens, err = coerceInt(in.LimiteMensagens, 0); err != nil || out.LimiteMensagens < 0 {
		return out, errors.New("limiteMensagens must be a non-negative integer")
	}
	if out.LimiteConexoes, err = coerceInt(in.LimiteConexoes, 1); err != nil || out.LimiteConexoes < 0 {
		return out, errors.New("limiteConexoes must be a non-negative integer")
	}
	if in.Ativo != nil {
		b, err := coerceBool(in.Ativo)
		if err != nil {
			return out, errors.New("ativo must be boolean")
		}
		out.Ativo = b
	}
	return out, nil
}

func coerceFloat(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", "."))
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	default:
		return 0, errors.New("not numeric")
	}
}

func coerceInt(v any, def int) (int, error) {
	switch t := v.(type) {
	case nil:
		return def, nil
	case float64:
		return int(t), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return def, nil
		}
		return strconv.Atoi(s)
	default:
		return 0, errors.New("not integer")
	}
}

func coerceBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "sim":
			return true, nil
		case "false", "0", "nao", "não":
			return false, nil
		}
	case float64:
		return t != 0, nil
	}
	return false, errors.New("not boolean")
}

func (s *Server) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var in PlanInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.HttpError(w, http.StatusBadRequest, "invalid body")
		return
	}
	p, err := NormalizePlan(in)
	if err != nil {
		utils.HttpError(w, http.StatusBadRequest, err.Error())
		return
	}

	var plano db.Plano
	if err := s.DB.QueryRow(r.Context(), `
		INSERT INTO planos (nome, preco_centavos, limite_mensagens, limite_conexoes, ativo)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, nome, preco_centavos, limite_mensagens, limite_conexoes, ativo, created_at`,
		p.Nome, p.PrecoCentavos, p.LimiteMensagens, p.LimiteConexoes, p.Ativo).
		Scan(&plano.ID, &plano.Nome, &plano.PrecoCentavos, &plano.LimiteMensagens,
			&plano.LimiteConexoes, &plano.Ativo, &plano.CreatedAt); err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JsonCreated(w, plano)
}

func (s *Server) ListPlans(w http.ResponseWriter, r *http.Request) {
	rows, err := s.DB.Query(r.Context(), `
		SELECT id, nome, preco_centavos, limite_mensagens, limite_conexoes, ativo, created_at
		FROM planos ORDER BY created_at`)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	planos := []db.Plano{}
	for rows.Next() {
		var p db.Plano
		if err := rows.Scan(&p.ID, &p.Nome, &p.PrecoCentavos, &p.LimiteMensagens,
			&p.LimiteConexoes, &p.Ativo, &p.CreatedAt); err != nil {
			utils.HttpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		planos = append(planos, p)
	}
	utils.JsonOK(w, planos)
}

func (s *Server) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in PlanInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.HttpError(w, http.StatusBadRequest, "invalid body")
		return
	}
	p, err := NormalizePlan(in)
	if err != nil {
		utils.HttpError(w, http.StatusBadRequest, err.Error())
		return
	}

	var plano db.Plano
	if err := s.DB.QueryRow(r.Context(), `
		UPDATE planos SET nome=$2, preco_centavos=$3, limite_mensagens=$4, limite_conexoes=$5, ativo=$6
		WHERE id=$1
		RETURNING id, nome, preco_centavos, limite_mensagens, limite_conexoes, ativo, created_at`,
		id, p.Nome, p.PrecoCentavos, p.LimiteMensagens, p.LimiteConexoes, p.Ativo).
		Scan(&plano.ID, &plano.Nome, &plano.PrecoCentavos, &plano.LimiteMensagens,
			&plano.LimiteConexoes, &plano.Ativo, &plano.CreatedAt); err != nil {
		utils.HttpError(w, http.StatusNotFound, "plano not found")
		return
	}
	utils.JsonOK(w, plano)
}

func (s *Server) DeletePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tag, err := s.DB.Exec(r.Context(), `DELETE FROM planos WHERE id=$1`, id)
	if err != nil {
		utils.HttpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tag.RowsAffected() == 0 {
		utils.HttpError(w, http.StatusNotFound, "plano not found")
		return
	}
	utils.JsonOK(w, map[string]string{"status": "deleted"})
}
