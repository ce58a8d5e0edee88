package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/Dcadv789/scalazap/api/requests"
	"github.com/Dcadv789/scalazap/api/utils"
	"github.com/Dcadv789/scalazap/db"
	"github.com/Dcadv789/scalazap/dispatch"
	"github.com/Dcadv789/scalazap/graph"
	"github.com/Dcadv789/scalazap/storage"
	"github.com/Dcadv789/scalazap/ws"
)

// PurchaseTracker dispara eventos de conversão. A entrega roda fora do
// caminho da request.
type PurchaseTracker interface {
	Purchase(ctx context.Context, empresaID, email string, valorCentavos int64)
}

type Server struct {
	DB      *pgxpool.Pool
	Ingest  IngestStore
	Tokens  requests.TokenProvider
	Graph   *graph.Client
	Hub     *ws.Hub
	Runner  *dispatch.Runner
	Media   *storage.MediaStore // opcional; nil desliga o arquivamento
	Tracker PurchaseTracker

	VerifyToken    string
	HeaderLookup   bool              // habilita o fallback x-user-id (dev/automação)
	WebhookSecrets map[string]string // provedor de pagamento -> segredo compartilhado
}

// Mount registra todas as rotas da API.
func (s *Server) Mount(r chi.Router) {
	r.Post("/auth/register", s.Register)
	r.Post("/auth/login", s.Login)

	// webhooks não carregam sessão
	r.Get("/whatsapp/webhook", s.WebhookVerify)
	r.Post("/whatsapp/webhook", s.WebhookReceive)
	r.Post("/webhooks/pagamentos/{provedor}", s.PaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.RequireAuth)
		r.Get("/auth/me", s.Me)

		r.Get("/conexoes", s.ListConnections)
		r.Post("/conexoes", s.CreateConnection)
		r.Delete("/conexoes/{id}", s.DeleteConnection)

		r.Get("/contatos", s.ListContacts)
		r.Get("/contatos/{id}/mensagens", s.ListContactMessages)
		r.Get("/mensagens/recentes", s.ListRecentMessages)
		r.Post("/mensagens/send", s.SendMessage)

		r.Get("/campanhas", s.ListCampaigns)
		r.Post("/campanhas", s.CreateCampaign)
		r.Get("/campanhas/{id}", s.GetCampaign)
		r.Post("/campanhas/{id}/start", s.StartCampaign)

		r.Get("/membros", s.ListMembers)

		r.Group(func(r chi.Router) {
			r.Use(s.RequireSuperadmin)
			r.Get("/admin/empresas", s.ListEmpresas)
			r.Get("/admin/planos", s.ListPlans)
			r.Post("/admin/planos", s.CreatePlan)
			r.Put("/admin/planos/{id}", s.UpdatePlan)
			r.Delete("/admin/planos/{id}", s.DeletePlan)
		})
	})

	r.Get("/ws", s.ServeWS)
}

var (
	errUnauthenticated = errors.New("unauthenticated")
	errTenantForbidden = errors.New("tenant not allowed")
)

// resolve produz o contexto de autenticação: identidade (JWT por header ou
// cookie; opcionalmente x-user-id) e a empresa ativa escolhida entre as
// associações reais do perfil. Nunca confia em empresa vinda de header sem
// que o perfil esteja autenticado e associado a ela.
func (s *Server) resolve(r *http.Request) (*requests.AuthContext, error) {
	ctx := r.Context()

	profileID := ""
	if tok := requests.TokenFromRequest(r); tok != "" {
		if cl, err := s.Tokens.Parse(tok); err == nil {
			profileID = cl.ProfileID
		}
	}
	if profileID == "" && s.HeaderLookup {
		if uid := r.Header.Get("x-user-id"); uid != "" {
			var id string
			if err := s.DB.QueryRow(ctx, `SELECT id FROM perfis WHERE id=$1`, uid).Scan(&id); err == nil {
				profileID = id
			}
		}
	}
	if profileID == "" {
		return nil, errUnauthenticated
	}

	membros, err := s.loadMemberships(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if len(membros) == 0 {
		return nil, errUnauthenticated
	}

	selected := r.Header.Get("x-selected-empresa")
	m, ok := ChooseMembro(membros, selected)
	if !ok {
		// superadmin pode operar sobre qualquer empresa
		if super := superadminOf(membros); super != nil && selected != "" {
			return &requests.AuthContext{Membro: *super, TenantID: selected, IsSuperAdmin: true}, nil
		}
		return nil, errTenantForbidden
	}
	return &requests.AuthContext{Membro: m, TenantID: m.IDEmpresa, IsSuperAdmin: m.EhSuperadmin}, nil
}

func (s *Server) loadMemberships(ctx context.Context, profileID string) ([]db.Membro, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, id_perfil, id_empresa, funcao, eh_superadmin, created_at
		FROM membros WHERE id_perfil=$1 ORDER BY created_at`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []db.Membro
	for rows.Next() {
		var m db.Membro
		if err := rows.Scan(&m.ID, &m.IDPerfil, &m.IDEmpresa, &m.Funcao, &m.EhSuperadmin, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ChooseMembro escolhe a associação ativa: sem header, a primeira; com
// header, somente uma empresa à qual o perfil realmente pertence.
func ChooseMembro(membros []db.Membro, selected string) (db.Membro, bool) {
	if len(membros) == 0 {
		return db.Membro{}, false
	}
	if selected == "" {
		return membros[0], true
	}
	for _, m := range membros {
		if m.IDEmpresa == selected {
			return m, true
		}
	}
	return db.Membro{}, false
}

func superadminOf(membros []db.Membro) *db.Membro {
	for i := range membros {
		if membros[i].EhSuperadmin {
			return &membros[i]
		}
	}
	return nil
}

func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, err := s.resolve(r)
		if err != nil {
			switch {
			case errors.Is(err, errTenantForbidden):
				utils.HttpError(w, http.StatusForbidden, "empresa not allowed for this profile")
			case errors.Is(err, errUnauthenticated):
				utils.HttpError(w, http.StatusUnauthorized, "unauthenticated")
			default:
				log.Error().Err(err).Msg("auth resolve failed")
				utils.HttpError(w, http.StatusUnauthorized, "unauthenticated")
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(requests.WithAuth(r.Context(), auth)))
	})
}

func (s *Server) RequireSuperadmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := requests.GetAuth(r)
		if auth == nil || !auth.IsSuperAdmin {
			utils.HttpError(w, http.StatusForbidden, "superadmin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeWS resolve a identidade (JWT via ?token=) e entrega ao hub.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	auth, err := s.resolve(r)
	if err != nil {
		utils.HttpError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	ws.Serve(s.Hub, ws.Identity{
		EmpresaID: auth.TenantID,
		MembroID:  auth.Membro.ID,
		Funcao:    auth.Membro.Funcao,
	}, w, r)
}
