package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema cria/ajusta o schema de forma idempotente ao subir o processo.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,

		`CREATE TABLE IF NOT EXISTS planos (
			id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			nome             TEXT NOT NULL,
			preco_centavos   BIGINT NOT NULL DEFAULT 0,
			limite_mensagens INTEGER NOT NULL DEFAULT 0,
			limite_conexoes  INTEGER NOT NULL DEFAULT 1,
			ativo            BOOLEAN NOT NULL DEFAULT TRUE,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,

		`CREATE TABLE IF NOT EXISTS empresas (
			id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			nome              TEXT NOT NULL,
			status_assinatura TEXT NOT NULL DEFAULT 'trial',
			id_plano          UUID REFERENCES planos(id),
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,

		`CREATE TABLE IF NOT EXISTS perfis (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			nome       TEXT NOT NULL,
			email      TEXT NOT NULL UNIQUE,
			senha_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_perfis_email_lower ON perfis ((LOWER(email)));`,

		`CREATE TABLE IF NOT EXISTS membros (
			id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			id_perfil     UUID NOT NULL REFERENCES perfis(id) ON DELETE CASCADE,
			id_empresa    UUID NOT NULL REFERENCES empresas(id) ON DELETE CASCADE,
			funcao        TEXT NOT NULL DEFAULT 'agente',
			eh_superadmin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (id_perfil, id_empresa)
		);`,

		`CREATE TABLE IF NOT EXISTS conexoes (
			id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			id_empresa      UUID NOT NULL REFERENCES empresas(id) ON DELETE CASCADE,
			numero          TEXT NOT NULL DEFAULT '',
			phone_number_id TEXT NOT NULL UNIQUE,
			waba_id         TEXT NOT NULL DEFAULT '',
			access_token    TEXT NOT NULL,
			status          TEXT NOT NULL DEFAULT 'ativa',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,

		`CREATE TABLE IF NOT EXISTS contatos (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			id_empresa UUID NOT NULL REFERENCES empresas(id) ON DELETE CASCADE,
			telefone   TEXT NOT NULL,
			nome       TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (telefone, id_empresa)
		);`,

		`CREATE TABLE IF NOT EXISTS mensagens (
			id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			id_empresa    UUID NOT NULL REFERENCES empresas(id) ON DELETE CASCADE,
			id_contato    UUID NOT NULL REFERENCES contatos(id) ON DELETE CASCADE,
			id_conexao    UUID REFERENCES conexoes(id) ON DELETE SET NULL,
			direcao       TEXT NOT NULL,
			status        TEXT NOT NULL,
			tipo          TEXT NOT NULL DEFAULT 'text',
			conteudo      TEXT NOT NULL DEFAULT '',
			wa_message_id TEXT,
			media_url     TEXT,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_mensagens_empresa_contato ON mensagens (id_empresa, id_contato, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_mensagens_wa_id ON mensagens (wa_message_id);`,

		`CREATE TABLE IF NOT EXISTS campanhas (
			id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			id_empresa  UUID NOT NULL REFERENCES empresas(id) ON DELETE CASCADE,
			id_conexao  UUID NOT NULL REFERENCES conexoes(id) ON DELETE CASCADE,
			nome        TEXT NOT NULL,
			template    TEXT NOT NULL,
			idioma      TEXT NOT NULL DEFAULT 'pt_BR',
			status      TEXT NOT NULL DEFAULT 'draft',
			total       INTEGER NOT NULL DEFAULT 0,
			enviados    INTEGER NOT NULL DEFAULT 0,
			falhas      INTEGER NOT NULL DEFAULT 0,
			started_at  TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,

		`CREATE TABLE IF NOT EXISTS destinatarios (
			id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			id_campanha   UUID NOT NULL REFERENCES campanhas(id) ON DELETE CASCADE,
			id_empresa    UUID NOT NULL REFERENCES empresas(id) ON DELETE CASCADE,
			telefone      TEXT NOT NULL,
			nome          TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT 'pending',
			wa_message_id TEXT,
			erro          TEXT,
			sent_at       TIMESTAMPTZ,
			claimed_at    TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS idx_destinatarios_campanha_status ON destinatarios (id_campanha, status);`,

		`CREATE TABLE IF NOT EXISTS faturas (
			id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			id_empresa     UUID REFERENCES empresas(id) ON DELETE SET NULL,
			provedor       TEXT NOT NULL,
			evento         TEXT NOT NULL,
			referencia     TEXT NOT NULL DEFAULT '',
			valor_centavos BIGINT NOT NULL DEFAULT 0,
			payload        JSONB,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,

		`CREATE TABLE IF NOT EXISTS webhook_logs (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			origem     TEXT NOT NULL,
			payload    JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,

		`CREATE TABLE IF NOT EXISTS eventos_conversao (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			id_empresa UUID REFERENCES empresas(id) ON DELETE CASCADE,
			provedor   TEXT NOT NULL,
			evento     TEXT NOT NULL,
			payload    JSONB,
			enviado    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
	}

	for _, q := range stmts {
		if _, err := pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
