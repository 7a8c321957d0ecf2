package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

const defaultOperationTimeout = 5 * time.Second

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Postgres is the stateless translation boundary between wire rows and
// in-memory entities. No other component may assume wire field names.
type Postgres struct {
	dsn     string
	timeout time.Duration
	openDB  sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, domain.ErrInvalidInput
	}
	return &Postgres{
		dsn:     dsn,
		timeout: defaultOperationTimeout,
		openDB:  sql.Open,
	}, nil
}

func (g *Postgres) ensureReady() error {
	if g == nil {
		return domain.ErrInvalidInput
	}
	g.initOnce.Do(func() {
		db, err := g.openDB("postgres", g.dsn)
		if err != nil {
			g.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()
		for _, ddl := range schemaStatements {
			if _, err := db.ExecContext(ctx, ddl); err != nil {
				_ = db.Close()
				g.initErr = err
				return
			}
		}
		g.db = db
	})
	return g.initErr
}

func (g *Postgres) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		dog_name TEXT NOT NULL DEFAULT '',
		other_dogs TEXT[] NOT NULL DEFAULT '{}',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		membership BOOLEAN NOT NULL DEFAULT FALSE,
		behavioural_brief_id TEXT,
		behaviour_questionnaire_id TEXT,
		booking_terms_signed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		client_id TEXT,
		dog_name TEXT NOT NULL DEFAULT '',
		session_type TEXT NOT NULL,
		booking_date TEXT NOT NULL,
		booking_time TEXT NOT NULL,
		quote NUMERIC NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		session_paid BOOLEAN NOT NULL DEFAULT FALSE,
		payment_confirmed_at TIMESTAMPTZ,
		session_plan_sent BOOLEAN NOT NULL DEFAULT FALSE,
		questionnaire_bypass BOOLEAN NOT NULL DEFAULT FALSE,
		event_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS email_aliases (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		email TEXT NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS membership_payments (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		paid_at TIMESTAMPTZ NOT NULL,
		amount NUMERIC NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS behavioural_briefs (
		id TEXT PRIMARY KEY,
		client_id TEXT,
		email TEXT NOT NULL DEFAULT '',
		dog_name TEXT NOT NULL DEFAULT '',
		life_with_dog TEXT NOT NULL DEFAULT '',
		best_outcome TEXT NOT NULL DEFAULT '',
		submitted_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS behaviour_questionnaires (
		id TEXT PRIMARY KEY,
		client_id TEXT,
		email TEXT NOT NULL DEFAULT '',
		dog_name TEXT NOT NULL DEFAULT '',
		dog_age TEXT NOT NULL DEFAULT '',
		dog_breed TEXT NOT NULL DEFAULT '',
		main_concern TEXT NOT NULL DEFAULT '',
		ideal_outcome TEXT NOT NULL DEFAULT '',
		submitted_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dismissed_duplicates (
		pair_key TEXT PRIMARY KEY,
		dismissed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

func (g *Postgres) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, g.timeout)
}

// --- clients ---

const clientColumns = `id, first_name, last_name, email, phone, address, dog_name, other_dogs,
	active, membership, behavioural_brief_id, behaviour_questionnaire_id, booking_terms_signed_at`

func scanClient(row interface{ Scan(...any) error }) (domain.Client, error) {
	var client domain.Client
	var otherDogs pq.StringArray
	var signedAt sql.NullTime
	err := row.Scan(
		&client.ID, &client.FirstName, &client.LastName, &client.Email, &client.Phone,
		&client.Address, &client.DogName, &otherDogs, &client.Active, &client.Membership,
		&client.BehaviouralBriefID, &client.BehaviourQuestionnaireID, &signedAt,
	)
	if err != nil {
		return domain.Client{}, err
	}
	client.OtherDogs = []string(otherDogs)
	if signedAt.Valid {
		at := signedAt.Time
		client.BookingTermsSignedAt = &at
	}
	return client, nil
}

func (g *Postgres) GetAllClients(ctx context.Context) ([]domain.Client, error) {
	if err := g.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	rows, err := g.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM clients", clientColumns))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	clients := make([]domain.Client, 0)
	for rows.Next() {
		client, scanErr := scanClient(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

func (g *Postgres) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	if err := g.ensureReady(); err != nil {
		return domain.Client{}, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	row := g.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM clients WHERE id = $1", clientColumns), id)
	client, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Client{}, domain.ErrNotFound
	}
	return client, err
}

func (g *Postgres) FindClientByEmail(ctx context.Context, email string) (domain.Client, error) {
	if err := g.ensureReady(); err != nil {
		return domain.Client{}, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	row := g.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM clients WHERE LOWER(email) = LOWER($1) LIMIT 1", clientColumns), strings.TrimSpace(email))
	client, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Client{}, domain.ErrNotFound
	}
	return client, err
}

func (g *Postgres) CreateClient(ctx context.Context, client domain.Client) (domain.Client, error) {
	if err := g.ensureReady(); err != nil {
		return domain.Client{}, err
	}
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO clients (id, first_name, last_name, email, phone, address, dog_name, other_dogs,
			active, membership, behavioural_brief_id, behaviour_questionnaire_id, booking_terms_signed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		client.ID, client.FirstName, client.LastName, client.Email, client.Phone, client.Address,
		client.DogName, pq.Array(client.OtherDogs), client.Active, client.Membership,
		client.BehaviouralBriefID, client.BehaviourQuestionnaireID, client.BookingTermsSignedAt,
	)
	return client, err
}

func (g *Postgres) UpdateClient(ctx context.Context, client domain.Client) (domain.Client, error) {
	if err := g.ensureReady(); err != nil {
		return domain.Client{}, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	result, err := g.db.ExecContext(ctx, `
		UPDATE clients SET first_name = $2, last_name = $3, email = $4, phone = $5, address = $6,
			dog_name = $7, other_dogs = $8, active = $9, membership = $10,
			behavioural_brief_id = $11, behaviour_questionnaire_id = $12, booking_terms_signed_at = $13
		WHERE id = $1`,
		client.ID, client.FirstName, client.LastName, client.Email, client.Phone, client.Address,
		client.DogName, pq.Array(client.OtherDogs), client.Active, client.Membership,
		client.BehaviouralBriefID, client.BehaviourQuestionnaireID, client.BookingTermsSignedAt,
	)
	if err != nil {
		return domain.Client{}, err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return domain.Client{}, domain.ErrNotFound
	}
	return client, nil
}

func (g *Postgres) DeleteClient(ctx context.Context, id string) error {
	if err := g.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	result, err := g.db.ExecContext(ctx, "DELETE FROM clients WHERE id = $1", id)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- sessions ---

const sessionColumns = `id, client_id, dog_name, session_type, booking_date, booking_time, quote,
	notes, session_paid, payment_confirmed_at, session_plan_sent, questionnaire_bypass, event_id`

func scanSession(row interface{ Scan(...any) error }) (domain.Session, error) {
	var session domain.Session
	var confirmedAt sql.NullTime
	err := row.Scan(
		&session.ID, &session.ClientID, &session.DogName, &session.SessionType,
		&session.BookingDate, &session.BookingTime, &session.Quote, &session.Notes,
		&session.SessionPaid, &confirmedAt, &session.SessionPlanSent,
		&session.QuestionnaireBypass, &session.EventID,
	)
	if err != nil {
		return domain.Session{}, err
	}
	if confirmedAt.Valid {
		at := confirmedAt.Time
		session.PaymentConfirmedAt = &at
	}
	return session, nil
}

func (g *Postgres) GetAllSessions(ctx context.Context) ([]domain.Session, error) {
	if err := g.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	rows, err := g.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM sessions", sessionColumns))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := make([]domain.Session, 0)
	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (g *Postgres) GetSessionByID(ctx context.Context, id string) (domain.Session, error) {
	if err := g.ensureReady(); err != nil {
		return domain.Session{}, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	row := g.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM sessions WHERE id = $1", sessionColumns), id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrNotFound
	}
	return session, err
}

func (g *Postgres) GetSessionsByClientID(ctx context.Context, clientID string) ([]domain.Session, error) {
	if err := g.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	rows, err := g.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM sessions WHERE client_id = $1", sessionColumns), clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := make([]domain.Session, 0)
	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (g *Postgres) CreateSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	if err := g.ensureReady(); err != nil {
		return domain.Session{}, err
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO sessions (id, client_id, dog_name, session_type, booking_date, booking_time,
			quote, notes, session_paid, payment_confirmed_at, session_plan_sent,
			questionnaire_bypass, event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		session.ID, session.ClientID, session.DogName, string(session.SessionType),
		session.BookingDate, session.BookingTime, session.Quote, session.Notes,
		session.SessionPaid, session.PaymentConfirmedAt, session.SessionPlanSent,
		session.QuestionnaireBypass, session.EventID,
	)
	return session, err
}

func (g *Postgres) UpdateSession(ctx context.Context, id string, update domain.SessionUpdate) (domain.Session, error) {
	if err := g.ensureReady(); err != nil {
		return domain.Session{}, err
	}
	prior, err := g.GetSessionByID(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	next := update.ApplyTo(prior)
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	result, err := g.db.ExecContext(ctx, `
		UPDATE sessions SET client_id = $2, dog_name = $3, session_type = $4, booking_date = $5,
			booking_time = $6, quote = $7, notes = $8, session_paid = $9,
			payment_confirmed_at = $10, session_plan_sent = $11, questionnaire_bypass = $12,
			event_id = $13
		WHERE id = $1`,
		next.ID, next.ClientID, next.DogName, string(next.SessionType), next.BookingDate,
		next.BookingTime, next.Quote, next.Notes, next.SessionPaid, next.PaymentConfirmedAt,
		next.SessionPlanSent, next.QuestionnaireBypass, next.EventID,
	)
	if err != nil {
		return domain.Session{}, err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return domain.Session{}, domain.ErrNotFound
	}
	return next, nil
}

func (g *Postgres) DeleteSession(ctx context.Context, id string) error {
	if err := g.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	result, err := g.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", id)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReassignSessions moves every session owned by fromClientID to toClientID
// and reports how many rows moved.
func (g *Postgres) ReassignSessions(ctx context.Context, fromClientID, toClientID string) (int, error) {
	if err := g.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := g.opCtx(ctx)
	defer cancel()
	result, err := g.db.ExecContext(ctx,
		"UPDATE sessions SET client_id = $2 WHERE client_id = $1", fromClientID, toClientID)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}
