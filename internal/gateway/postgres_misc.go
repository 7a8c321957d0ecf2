package gateway

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

// --- email aliases ---

func (g *Postgres) GetAllAliases(ctx context.Context) ([]domain.EmailAlias, error) {
	if err := g.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	rows, err := g.db.QueryContext(ctx, "SELECT id, client_id, email, is_primary FROM email_aliases")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	aliases := make([]domain.EmailAlias, 0)
	for rows.Next() {
		var alias domain.EmailAlias
		if scanErr := rows.Scan(&alias.ID, &alias.ClientID, &alias.Email, &alias.IsPrimary); scanErr != nil {
			return nil, scanErr
		}
		aliases = append(aliases, alias)
	}
	return aliases, rows.Err()
}

func (g *Postgres) GetAliasesByClientID(ctx context.Context, clientID string) ([]domain.EmailAlias, error) {
	if err := g.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	rows, err := g.db.QueryContext(ctx,
		"SELECT id, client_id, email, is_primary FROM email_aliases WHERE client_id = $1", clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	aliases := make([]domain.EmailAlias, 0)
	for rows.Next() {
		var alias domain.EmailAlias
		if scanErr := rows.Scan(&alias.ID, &alias.ClientID, &alias.Email, &alias.IsPrimary); scanErr != nil {
			return nil, scanErr
		}
		aliases = append(aliases, alias)
	}
	return aliases, rows.Err()
}

func (g *Postgres) FindAliasByEmail(ctx context.Context, email string) (domain.EmailAlias, error) {
	if err := g.ensureReady(); err != nil {
		return domain.EmailAlias{}, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	row := g.db.QueryRowContext(ctx,
		"SELECT id, client_id, email, is_primary FROM email_aliases WHERE LOWER(email) = LOWER($1) LIMIT 1",
		strings.TrimSpace(email))
	var alias domain.EmailAlias
	err := row.Scan(&alias.ID, &alias.ClientID, &alias.Email, &alias.IsPrimary)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EmailAlias{}, domain.ErrNotFound
	}
	return alias, err
}

func (g *Postgres) CreateAlias(ctx context.Context, alias domain.EmailAlias) (domain.EmailAlias, error) {
	if err := g.ensureReady(); err != nil {
		return domain.EmailAlias{}, err
	}
	if alias.ID == "" {
		alias.ID = uuid.NewString()
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	_, err := g.db.ExecContext(ctx,
		"INSERT INTO email_aliases (id, client_id, email, is_primary) VALUES ($1, $2, $3, $4)",
		alias.ID, alias.ClientID, alias.Email, alias.IsPrimary)
	return alias, err
}

func (g *Postgres) UpdateAlias(ctx context.Context, alias domain.EmailAlias) (domain.EmailAlias, error) {
	if err := g.ensureReady(); err != nil {
		return domain.EmailAlias{}, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	result, err := g.db.ExecContext(ctx,
		"UPDATE email_aliases SET client_id = $2, email = $3, is_primary = $4 WHERE id = $1",
		alias.ID, alias.ClientID, alias.Email, alias.IsPrimary)
	if err != nil {
		return domain.EmailAlias{}, err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return domain.EmailAlias{}, domain.ErrNotFound
	}
	return alias, nil
}

// ReassignAliases rebinds every alias row of fromClientID to toClientID.
func (g *Postgres) ReassignAliases(ctx context.Context, fromClientID, toClientID string) (int, error) {
	if err := g.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	result, err := g.db.ExecContext(ctx,
		"UPDATE email_aliases SET client_id = $2 WHERE client_id = $1", fromClientID, toClientID)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// --- membership payments ---

func (g *Postgres) GetAllPayments(ctx context.Context) ([]domain.MembershipPayment, error) {
	if err := g.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	rows, err := g.db.QueryContext(ctx, "SELECT id, email, paid_at, amount FROM membership_payments")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	payments := make([]domain.MembershipPayment, 0)
	for rows.Next() {
		var payment domain.MembershipPayment
		if scanErr := rows.Scan(&payment.ID, &payment.Email, &payment.Date, &payment.Amount); scanErr != nil {
			return nil, scanErr
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func (g *Postgres) FindPaymentsByEmail(ctx context.Context, email string) ([]domain.MembershipPayment, error) {
	if err := g.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	rows, err := g.db.QueryContext(ctx,
		"SELECT id, email, paid_at, amount FROM membership_payments WHERE LOWER(email) = LOWER($1)",
		strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	payments := make([]domain.MembershipPayment, 0)
	for rows.Next() {
		var payment domain.MembershipPayment
		if scanErr := rows.Scan(&payment.ID, &payment.Email, &payment.Date, &payment.Amount); scanErr != nil {
			return nil, scanErr
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

// ReassignPayments rewrites payments recorded under fromEmail to toEmail.
func (g *Postgres) ReassignPayments(ctx context.Context, fromEmail, toEmail string) (int, error) {
	if err := g.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	result, err := g.db.ExecContext(ctx,
		"UPDATE membership_payments SET email = $2 WHERE LOWER(email) = LOWER($1)",
		strings.TrimSpace(fromEmail), strings.TrimSpace(toEmail))
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// --- intake forms ---

func (g *Postgres) GetAllBriefs(ctx context.Context) ([]domain.BehaviouralBrief, error) {
	if err := g.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	rows, err := g.db.QueryContext(ctx,
		"SELECT id, client_id, email, dog_name, life_with_dog, best_outcome, submitted_at FROM behavioural_briefs")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	briefs := make([]domain.BehaviouralBrief, 0)
	for rows.Next() {
		var brief domain.BehaviouralBrief
		if scanErr := rows.Scan(&brief.ID, &brief.ClientID, &brief.Email, &brief.DogName,
			&brief.LifeWithDog, &brief.BestOutcome, &brief.SubmittedAt); scanErr != nil {
			return nil, scanErr
		}
		briefs = append(briefs, brief)
	}
	return briefs, rows.Err()
}

func (g *Postgres) GetBriefsByClientID(ctx context.Context, clientID string) ([]domain.BehaviouralBrief, error) {
	if err := g.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	rows, err := g.db.QueryContext(ctx,
		"SELECT id, client_id, email, dog_name, life_with_dog, best_outcome, submitted_at FROM behavioural_briefs WHERE client_id = $1",
		clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	briefs := make([]domain.BehaviouralBrief, 0)
	for rows.Next() {
		var brief domain.BehaviouralBrief
		if scanErr := rows.Scan(&brief.ID, &brief.ClientID, &brief.Email, &brief.DogName,
			&brief.LifeWithDog, &brief.BestOutcome, &brief.SubmittedAt); scanErr != nil {
			return nil, scanErr
		}
		briefs = append(briefs, brief)
	}
	return briefs, rows.Err()
}

func (g *Postgres) ReassignBriefs(ctx context.Context, fromClientID, toClientID string) (int, error) {
	if err := g.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	result, err := g.db.ExecContext(ctx,
		"UPDATE behavioural_briefs SET client_id = $2 WHERE client_id = $1", fromClientID, toClientID)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

func (g *Postgres) GetAllQuestionnaires(ctx context.Context) ([]domain.BehaviourQuestionnaire, error) {
	if err := g.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	rows, err := g.db.QueryContext(ctx,
		"SELECT id, client_id, email, dog_name, dog_age, dog_breed, main_concern, ideal_outcome, submitted_at FROM behaviour_questionnaires")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	questionnaires := make([]domain.BehaviourQuestionnaire, 0)
	for rows.Next() {
		var q domain.BehaviourQuestionnaire
		if scanErr := rows.Scan(&q.ID, &q.ClientID, &q.Email, &q.DogName, &q.DogAge, &q.DogBreed,
			&q.MainConcern, &q.IdealOutcome, &q.SubmittedAt); scanErr != nil {
			return nil, scanErr
		}
		questionnaires = append(questionnaires, q)
	}
	return questionnaires, rows.Err()
}

func (g *Postgres) GetQuestionnairesByClientID(ctx context.Context, clientID string) ([]domain.BehaviourQuestionnaire, error) {
	if err := g.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	rows, err := g.db.QueryContext(ctx,
		"SELECT id, client_id, email, dog_name, dog_age, dog_breed, main_concern, ideal_outcome, submitted_at FROM behaviour_questionnaires WHERE client_id = $1",
		clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	questionnaires := make([]domain.BehaviourQuestionnaire, 0)
	for rows.Next() {
		var q domain.BehaviourQuestionnaire
		if scanErr := rows.Scan(&q.ID, &q.ClientID, &q.Email, &q.DogName, &q.DogAge, &q.DogBreed,
			&q.MainConcern, &q.IdealOutcome, &q.SubmittedAt); scanErr != nil {
			return nil, scanErr
		}
		questionnaires = append(questionnaires, q)
	}
	return questionnaires, rows.Err()
}

func (g *Postgres) ReassignQuestionnaires(ctx context.Context, fromClientID, toClientID string) (int, error) {
	if err := g.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	result, err := g.db.ExecContext(ctx,
		"UPDATE behaviour_questionnaires SET client_id = $2 WHERE client_id = $1", fromClientID, toClientID)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// --- dismissed duplicate pairs ---

func (g *Postgres) GetDismissedPairs(ctx context.Context) ([]string, error) {
	if err := g.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	rows, err := g.db.QueryContext(ctx, "SELECT pair_key FROM dismissed_duplicates")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if scanErr := rows.Scan(&key); scanErr != nil {
			return nil, scanErr
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (g *Postgres) AddDismissedPair(ctx context.Context, pairKey string) error {
	if err := g.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	_, err := g.db.ExecContext(ctx,
		"INSERT INTO dismissed_duplicates (pair_key) VALUES ($1) ON CONFLICT (pair_key) DO NOTHING", pairKey)
	return err
}
