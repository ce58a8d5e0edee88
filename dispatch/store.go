package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implementa Store sobre o Postgres. Os claims usam UPDATE
// condicional (e SKIP LOCKED nos destinatários) para que dois processos
// nunca disparem o mesmo destinatário.
type PGStore struct {
	DB *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore { return &PGStore{DB: db} }

const campaignCols = `c.id, c.id_empresa, c.template, c.idioma, x.phone_number_id, x.access_token`

func (s *PGStore) ClaimCampaign(ctx context.Context, campaignID, tenantID string) (Campaign, bool, error) {
	var c Campaign
	err := s.DB.QueryRow(ctx, `
		WITH claimed AS (
			UPDATE campanhas SET status='sending', started_at=COALESCE(started_at, NOW())
			WHERE id=$1 AND id_empresa=$2 AND status='draft'
			RETURNING id, id_empresa, id_conexao, template, idioma
		)
		SELECT `+campaignCols+`
		FROM claimed c JOIN conexoes x ON x.id = c.id_conexao`,
		campaignID, tenantID,
	).Scan(&c.ID, &c.TenantID, &c.Template, &c.Idioma, &c.PhoneNumberID, &c.AccessToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return Campaign{}, false, nil
	}
	if err != nil {
		return Campaign{}, false, err
	}
	return c, true, nil
}

func (s *PGStore) StuckCampaigns(ctx context.Context) ([]Campaign, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+campaignCols+`
		FROM campanhas c JOIN conexoes x ON x.id = c.id_conexao
		WHERE c.status = 'sending'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Template, &c.Idioma, &c.PhoneNumberID, &c.AccessToken); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) ReleaseStaleClaims(ctx context.Context, campaignID string, olderThan time.Duration) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE destinatarios SET status='pending', claimed_at=NULL
		WHERE id_campanha=$1 AND status='sending'
		  AND claimed_at < NOW() - make_interval(secs => $2)`,
		campaignID, olderThan.Seconds())
	return err
}

func (s *PGStore) NextPending(ctx context.Context, campaignID string) (Recipient, bool, error) {
	var r Recipient
	err := s.DB.QueryRow(ctx, `
		UPDATE destinatarios SET status='sending', claimed_at=NOW()
		WHERE id = (
			SELECT id FROM destinatarios
			WHERE id_campanha=$1 AND status='pending'
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, telefone`,
		campaignID,
	).Scan(&r.ID, &r.Telefone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Recipient{}, false, nil
	}
	if err != nil {
		return Recipient{}, false, err
	}
	return r, true, nil
}

func (s *PGStore) MarkSent(ctx context.Context, campaignID, recipientID, waMessageID string) error {
	if _, err := s.DB.Exec(ctx, `
		UPDATE destinatarios SET status='sent', wa_message_id=$2, erro=NULL, sent_at=NOW()
		WHERE id=$1`, recipientID, waMessageID); err != nil {
		return err
	}
	_, err := s.DB.Exec(ctx, `UPDATE campanhas SET enviados = enviados + 1 WHERE id=$1`, campaignID)
	return err
}

func (s *PGStore) MarkFailed(ctx context.Context, campaignID, recipientID, reason string) error {
	if _, err := s.DB.Exec(ctx, `
		UPDATE destinatarios SET status='failed', erro=$2, sent_at=NOW()
		WHERE id=$1`, recipientID, reason); err != nil {
		return err
	}
	_, err := s.DB.Exec(ctx, `UPDATE campanhas SET falhas = falhas + 1 WHERE id=$1`, campaignID)
	return err
}

func (s *PGStore) FinishIfDone(ctx context.Context, campaignID string) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
		UPDATE campanhas SET status='completed', finished_at=NOW()
		WHERE id=$1 AND status='sending'
		  AND NOT EXISTS (
			SELECT 1 FROM destinatarios
			WHERE id_campanha=$1 AND status IN ('pending','sending')
		  )`, campaignID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
