package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kpicalc/internal/model"
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

// MigrateDir applies every .sql file in dir in lexical order (dev helper).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(data)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) CreateEntity(ctx context.Context, tenantID, entityType string, start time.Time, stops []model.Stop) (model.Entity, error) {
	id := uuid.New().String()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Entity{}, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO entities (id, tenant_id, entity_type, start_at, is_finalized) VALUES ($1,$2,$3,$4,false)`,
		id, tenantID, entityType, start)
	if err != nil {
		return model.Entity{}, err
	}
	if err := insertStops(ctx, tx, tenantID, id, 0, stops); err != nil {
		return model.Entity{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Entity{}, err
	}
	return p.GetEntity(ctx, tenantID, id)
}

func insertStops(ctx context.Context, tx *sql.Tx, tenantID, entityID string, seqBase int, stops []model.Stop) error {
	for i, s := range stops {
		_, err := tx.ExecContext(ctx, `INSERT INTO entity_stops (id, tenant_id, entity_id, stop_type, start_at, end_at, seq) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			uuid.New().String(), tenantID, entityID, string(s.Type), s.Start, s.End, seqBase+i)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) GetEntity(ctx context.Context, tenantID, id string) (model.Entity, error) {
	var e model.Entity
	var end sql.NullTime
	row := p.db.QueryRowContext(ctx, `SELECT id::text, entity_type, start_at, end_at, is_finalized FROM entities WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err := row.Scan(&e.ID, &e.EntityType, &e.Start, &end, &e.IsFinalized); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, ErrNotFound
		}
		return e, err
	}
	e.TenantID = tenantID
	if end.Valid {
		t := end.Time
		e.End = &t
	}
	rows, err := p.db.QueryContext(ctx, `SELECT stop_type, start_at, end_at FROM entity_stops WHERE tenant_id=$1 AND entity_id=$2 ORDER BY seq`, tenantID, id)
	if err != nil {
		return e, err
	}
	defer rows.Close()
	for rows.Next() {
		var s model.Stop
		var st string
		if err := rows.Scan(&st, &s.Start, &s.End); err != nil {
			return e, err
		}
		s.Type = model.StopType(st)
		e.Stops = append(e.Stops, s)
	}
	return e, rows.Err()
}

func (p *Postgres) ListEntities(ctx context.Context, tenantID, cursor string, limit int) ([]model.Entity, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text FROM entities WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text FROM entities WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, "", err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	out := []model.Entity{}
	for _, id := range ids {
		e, err := p.GetEntity(ctx, tenantID, id)
		if err != nil {
			return nil, "", err
		}
		out = append(out, e)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) AddStops(ctx context.Context, tenantID, id string, stops []model.Stop) (model.Entity, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Entity{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT true FROM entities WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Entity{}, ErrNotFound
		}
		return model.Entity{}, err
	}
	var seqBase int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq)+1, 0) FROM entity_stops WHERE tenant_id=$1 AND entity_id=$2`, tenantID, id).Scan(&seqBase); err != nil {
		return model.Entity{}, err
	}
	if err := insertStops(ctx, tx, tenantID, id, seqBase, stops); err != nil {
		return model.Entity{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Entity{}, err
	}
	return p.GetEntity(ctx, tenantID, id)
}

func (p *Postgres) FinalizeEntity(ctx context.Context, tenantID, id string, end time.Time) (model.Entity, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE entities SET end_at=$1, is_finalized=true WHERE tenant_id=$2 AND id=$3 AND is_finalized=false`, end, tenantID, id)
	if err != nil {
		return model.Entity{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Entity{}, err
	}
	if n == 0 {
		// distinguish missing from already finalized
		if _, err := p.GetEntity(ctx, tenantID, id); err != nil {
			return model.Entity{}, err
		}
		return model.Entity{}, ErrFinalized
	}
	return p.GetEntity(ctx, tenantID, id)
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	events, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		id, req.TenantID, req.URL, events, req.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events, secret FROM subscriptions WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows, tenantID)
		if err != nil {
			return nil, err
		}
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, events, secret FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, events, secret FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	var last string
	for rows.Next() {
		s, err := scanSubscription(rows, tenantID)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func scanSubscription(rows *sql.Rows, tenantID string) (model.Subscription, error) {
	var s model.Subscription
	var events []byte
	if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil {
		return s, err
	}
	s.TenantID = tenantID
	_ = json.Unmarshal(events, &s.Events)
	return s, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at) VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, tenantID, nullIfEmpty(subscriptionID), eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, COALESCE(subscription_id::text,''), event_type, url, secret, payload, status, attempts FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, response_code=$1, latency_ms=$2, delivered_at=now() WHERE id=$3`, responseCode, latencyMs, id)
		return err
	}
	var next any
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$1, response_code=$2, latency_ms=$3, next_attempt_at=COALESCE($4, now() + interval '1 minute') WHERE id=$5`,
		lastError, responseCode, latencyMs, next, id)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=$1, response_code=$2, latency_ms=$3 WHERE id=$4`,
		lastError, responseCode, latencyMs, id)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, event_type, status, attempts, url, next_attempt_at, COALESCE(last_error,'') FROM webhook_deliveries WHERE tenant_id=$1 AND status=$2 ORDER BY created_at DESC LIMIT $3`, tenantID, status, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, event_type, status, attempts, url, next_attempt_at, COALESCE(last_error,'') FROM webhook_deliveries WHERE tenant_id=$1 ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var id, eventType, st, url, lastErr string
		var attempts int
		var next sql.NullTime
		if err := rows.Scan(&id, &eventType, &st, &attempts, &url, &next, &lastErr); err != nil {
			return nil, "", err
		}
		item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
		if next.Valid {
			item["nextAttemptAt"] = next.Time
		}
		if lastErr != "" {
			item["lastError"] = lastErr
		}
		out = append(out, item)
	}
	return out, "", rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
