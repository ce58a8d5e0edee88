package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dcadv789/scalazap/db"
)

// IngestStore isola a persistência do webhook da Meta. O fluxo de ingestão
// roda contra esta interface, então os testes cobrem o handler sem banco.
type IngestStore interface {
	// LogRaw persiste o corpo cru antes de qualquer parsing.
	LogRaw(ctx context.Context, origem string, payload []byte) error
	// ConnectionByPhoneNumberID resolve a empresa dona do número.
	ConnectionByPhoneNumberID(ctx context.Context, phoneNumberID string) (db.Conexao, bool, error)
	// UpsertContato é idempotente na chave (telefone, id_empresa); um nome
	// vazio nunca apaga um nome já conhecido.
	UpsertContato(ctx context.Context, empresaID, telefone, nome string) (string, error)
	InsertInbound(ctx context.Context, m db.Mensagem) (db.Mensagem, error)
	// AdvanceOutboundStatus só move o status para frente: um delivered
	// atrasado não desfaz um read.
	AdvanceOutboundStatus(ctx context.Context, empresaID, waMessageID, status string) error
}

type pgIngest struct {
	db *pgxpool.Pool
}

func NewIngestStore(pool *pgxpool.Pool) IngestStore { return &pgIngest{db: pool} }

func (s *pgIngest) LogRaw(ctx context.Context, origem string, payload []byte) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO webhook_logs (origem, payload) VALUES ($1, $2)`,
		origem, json.RawMessage(payload))
	return err
}

func (s *pgIngest) ConnectionByPhoneNumberID(ctx context.Context, phoneNumberID string) (db.Conexao, bool, error) {
	var c db.Conexao
	err := s.db.QueryRow(ctx, `
		SELECT id, id_empresa, phone_number_id, access_token
		FROM conexoes WHERE phone_number_id=$1`, phoneNumberID).
		Scan(&c.ID, &c.IDEmpresa, &c.PhoneNumberID, &c.AccessToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return db.Conexao{}, false, nil
	}
	if err != nil {
		return db.Conexao{}, false, err
	}
	return c, true, nil
}

func (s *pgIngest) UpsertContato(ctx context.Context, empresaID, telefone, nome string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO contatos (id_empresa, telefone, nome) VALUES ($1,$2,$3)
		ON CONFLICT (telefone, id_empresa) DO UPDATE
		SET nome = CASE WHEN EXCLUDED.nome <> '' THEN EXCLUDED.nome ELSE contatos.nome END
		RETURNING id`,
		empresaID, telefone, nome).Scan(&id)
	return id, err
}

func (s *pgIngest) InsertInbound(ctx context.Context, m db.Mensagem) (db.Mensagem, error) {
	var out db.Mensagem
	err := s.db.QueryRow(ctx, `
		INSERT INTO mensagens (id_empresa, id_contato, id_conexao, direcao, status, tipo, conteudo, wa_message_id, media_url)
		VALUES ($1,$2,$3,'entrada','recebido',$4,$5,$6,$7)
		RETURNING id, id_empresa, id_contato, COALESCE(id_conexao::text, ''), direcao, status, tipo, conteudo, wa_message_id, media_url, created_at`,
		m.IDEmpresa, m.IDContato, m.IDConexao, m.Tipo, m.Conteudo, m.WaMessageID, m.MediaURL).
		Scan(&out.ID, &out.IDEmpresa, &out.IDContato, &out.IDConexao, &out.Direcao, &out.Status,
			&out.Tipo, &out.Conteudo, &out.WaMessageID, &out.MediaURL, &out.CreatedAt)
	return out, err
}

func (s *pgIngest) AdvanceOutboundStatus(ctx context.Context, empresaID, waMessageID, status string) error {
	// o CASE espelha MessageStatusRank
	_, err := s.db.Exec(ctx, `
		UPDATE mensagens SET status=$1
		WHERE wa_message_id=$2 AND id_empresa=$3 AND direcao='saida'
		  AND (CASE status WHEN 'enviado' THEN 1 WHEN 'entregue' THEN 2 WHEN 'lido' THEN 3 WHEN 'falha' THEN 4 ELSE 0 END)
		    < (CASE $1::text WHEN 'enviado' THEN 1 WHEN 'entregue' THEN 2 WHEN 'lido' THEN 3 WHEN 'falha' THEN 4 ELSE 0 END)`,
		status, waMessageID, empresaID)
	return err
}
