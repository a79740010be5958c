package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"hookrelay/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every .sql file in dir in lexical order. Statements are
// expected to be idempotent (CREATE TABLE IF NOT EXISTS and friends).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil { return err }
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
	}
	sort.Strings(names)
	for _, n := range names {
		b, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil { return err }
		if _, err := p.db.Exec(string(b)); err != nil { return fmt.Errorf("migrate %s: %w", n, err) }
	}
	return nil
}

// Subscriptions

func (p *Postgres) CreateSubscription(ctx context.Context, sub model.Subscription) error {
	if sub.ID == "" { sub.ID = uuid.New().String() }
	ev, _ := json.Marshal(sub.Events)
	hd := headersJSON(sub.Headers)
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_subscriptions (id, tenant_id, name, url, secret, events, headers, retry_count, timeout_ms, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		sub.ID, sub.TenantID, sub.Name, sub.URL, sub.Secret, ev, hd, sub.RetryCount, sub.TimeoutMs, sub.IsActive, sub.CreatedAt)
	return err
}

func (p *Postgres) GetSubscription(ctx context.Context, tenantID, id string) (model.Subscription, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id::text, tenant_id, name, url, secret, events, headers, retry_count, timeout_ms, is_active, created_at
		FROM webhook_subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	s, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) { return model.Subscription{}, ErrNotFound }
	return s, err
}

func (p *Postgres) UpdateSubscription(ctx context.Context, sub model.Subscription) error {
	ev, _ := json.Marshal(sub.Events)
	hd := headersJSON(sub.Headers)
	res, err := p.db.ExecContext(ctx, `UPDATE webhook_subscriptions
		SET name=$3, url=$4, events=$5, headers=$6, retry_count=$7, timeout_ms=$8, is_active=$9
		WHERE tenant_id=$1 AND id=$2`,
		sub.TenantID, sub.ID, sub.Name, sub.URL, ev, hd, sub.RetryCount, sub.TimeoutMs, sub.IsActive)
	if err != nil { return err }
	n, _ := res.RowsAffected()
	if n == 0 { return ErrNotFound }
	return nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil { return err }
	n, _ := res.RowsAffected()
	if n == 0 { return ErrNotFound }
	return nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, name, url, secret, events, headers, retry_count, timeout_ms, is_active, created_at
		FROM webhook_subscriptions WHERE tenant_id=$1 ORDER BY created_at`, tenantID)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil { return nil, err }
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListActiveForEvent(ctx context.Context, tenantID, event string) ([]model.Subscription, error) {
	ev, _ := json.Marshal([]string{event})
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, name, url, secret, events, headers, retry_count, timeout_ms, is_active, created_at
		FROM webhook_subscriptions WHERE tenant_id=$1 AND is_active AND events @> $2::jsonb`, tenantID, ev)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil { return nil, err }
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delivery attempts

func (p *Postgres) AppendAttempt(ctx context.Context, att model.DeliveryAttempt) (model.DeliveryAttempt, error) {
	if att.ID == "" { att.ID = uuid.New().String() }
	_, err := p.db.ExecContext(ctx, `INSERT INTO delivery_attempts (id, webhook_id, tenant_id, event, payload, status, attempt, status_code, response_body, error, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		att.ID, att.WebhookID, att.TenantID, att.Event, []byte(att.Payload), att.Status, att.Attempt,
		att.StatusCode, nullIfEmpty(att.ResponseBody), nullIfEmpty(att.Error), att.CreatedAt, att.CompletedAt)
	if err != nil { return model.DeliveryAttempt{}, err }
	return att, nil
}

func (p *Postgres) UpdateAttempt(ctx context.Context, id string, patch model.AttemptPatch) error {
	res, err := p.db.ExecContext(ctx, `UPDATE delivery_attempts
		SET status=COALESCE(NULLIF($2,''), status),
		    status_code=COALESCE($3, status_code),
		    response_body=COALESCE(NULLIF($4,''), response_body),
		    error=COALESCE(NULLIF($5,''), error),
		    completed_at=COALESCE($6, completed_at)
		WHERE id=$1`,
		id, patch.Status, patch.StatusCode, patch.ResponseBody, patch.Error, patch.CompletedAt)
	if err != nil { return err }
	n, _ := res.RowsAffected()
	if n == 0 { return ErrNotFound }
	return nil
}

func (p *Postgres) QueryAttempts(ctx context.Context, tenantID, webhookID string, f model.AttemptFilter) ([]model.DeliveryAttempt, error) {
	// Ownership check first; same 404 semantics as the registry.
	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM webhook_subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, webhookID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
	if err != nil { return nil, err }

	limit := f.Limit
	if limit <= 0 || limit > MaxQueryLimit { limit = MaxQueryLimit }
	q := `SELECT id::text, webhook_id::text, tenant_id, event, payload, status, attempt, status_code, response_body, error, created_at, completed_at
		FROM delivery_attempts WHERE webhook_id=$1`
	args := []any{webhookID}
	if f.Status != "" { args = append(args, f.Status); q += fmt.Sprintf(" AND status=$%d", len(args)) }
	if f.Event != "" { args = append(args, f.Event); q += fmt.Sprintf(" AND event=$%d", len(args)) }
	if !f.Since.IsZero() { args = append(args, f.Since); q += fmt.Sprintf(" AND created_at >= $%d", len(args)) }
	if !f.Until.IsZero() { args = append(args, f.Until); q += fmt.Sprintf(" AND created_at <= $%d", len(args)) }
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []model.DeliveryAttempt{}
	for rows.Next() {
		var a model.DeliveryAttempt
		var payload []byte
		var code sql.NullInt64
		var body, errStr sql.NullString
		var done sql.NullTime
		if err := rows.Scan(&a.ID, &a.WebhookID, &a.TenantID, &a.Event, &payload, &a.Status, &a.Attempt, &code, &body, &errStr, &a.CreatedAt, &done); err != nil {
			return nil, err
		}
		a.Payload = payload
		if code.Valid { c := int(code.Int64); a.StatusCode = &c }
		a.ResponseBody = body.String
		a.Error = errStr.String
		if done.Valid { t := done.Time; a.CompletedAt = &t }
		out = append(out, a)
	}
	return out, rows.Err()
}

// Helpers

type rowScanner interface{ Scan(dest ...any) error }

func scanSubscription(r rowScanner) (model.Subscription, error) {
	var s model.Subscription
	var ev, hd []byte
	if err := r.Scan(&s.ID, &s.TenantID, &s.Name, &s.URL, &s.Secret, &ev, &hd, &s.RetryCount, &s.TimeoutMs, &s.IsActive, &s.CreatedAt); err != nil {
		return model.Subscription{}, err
	}
	_ = json.Unmarshal(ev, &s.Events)
	if len(hd) > 0 { _ = json.Unmarshal(hd, &s.Headers) }
	return s, nil
}

func headersJSON(h map[string]string) any {
	if len(h) == 0 { return nil }
	b, _ := json.Marshal(h)
	return b
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

var _ Store = (*Postgres)(nil)
