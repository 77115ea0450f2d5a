package webhook

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

const (
	SignatureHeader = "X-FindPerson-Signature"
	EventHeader     = "X-FindPerson-Event"
)

// DB interface for database operations
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Service struct {
	db            DB
	client        *http.Client
	defaultSecret string
}

type ServiceOption func(*Service)

// WithHTTPClient replaces the delivery client
func WithHTTPClient(client *http.Client) ServiceOption {
	return func(s *Service) {
		s.client = client
	}
}

// WithDefaultSecret signs webhooks created without a secret
func WithDefaultSecret(secret string) ServiceOption {
	return func(s *Service) {
		s.defaultSecret = secret
	}
}

func NewService(db DB, opts ...ServiceOption) *Service {
	s := &Service{
		db: db,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers event to webhook. A failed delivery is queued for retry and
// only a queueing failure is returned.
func (s *Service) Send(ctx context.Context, webhook *Webhook, event EventPayload) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := s.deliver(ctx, webhook, event.Type, payload); err != nil {
		return s.enqueue(ctx, webhook.ID, event.Type, payload, err.Error())
	}

	return s.updateLastTriggered(ctx, webhook.ID)
}

// deliver posts the signed payload once
func (s *Service) deliver(ctx context.Context, webhook *Webhook, eventType string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(webhook.Secret, time.Now(), payload))
	req.Header.Set(EventHeader, eventType)
	req.Header.Set("User-Agent", "FindPerson-Webhook/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, webhookID uuid.UUID, eventType string, payload []byte, errorMsg string) error {
	query := `
		INSERT INTO webhook_queue (webhook_id, event_type, payload, next_retry_at, last_error)
		VALUES ($1, $2, $3, NOW() + INTERVAL '1 second', $4)
	`

	_, err := s.db.Exec(ctx, query, webhookID, eventType, payload, errorMsg)
	if err != nil {
		return fmt.Errorf("enqueue webhook: %w", err)
	}

	return nil
}

func (s *Service) updateLastTriggered(ctx context.Context, webhookID uuid.UUID) error {
	query := `UPDATE webhooks SET last_triggered_at = NOW() WHERE id = $1`
	_, err := s.db.Exec(ctx, query, webhookID)
	return err
}

const webhookColumns = `id, name, url, secret, events, enabled, last_triggered_at, created_at, updated_at`

func scanWebhook(row pgx.Row) (*Webhook, error) {
	var w Webhook
	var eventsJSON []byte

	err := row.Scan(
		&w.ID, &w.Name, &w.URL, &w.Secret,
		&eventsJSON, &w.Enabled, &w.LastTriggeredAt,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(eventsJSON, &w.Events); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	return &w, nil
}

func (s *Service) queryWebhooks(ctx context.Context, query string, args ...any) ([]*Webhook, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []*Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, w)
	}

	return webhooks, rows.Err()
}

func (s *Service) ListWebhooks(ctx context.Context) ([]*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks ORDER BY created_at DESC`
	return s.queryWebhooks(ctx, query)
}

// GetWebhooksByEvent returns enabled webhooks subscribed to eventType,
// including the ones subscribed to every event
func (s *Service) GetWebhooksByEvent(ctx context.Context, eventType string) ([]*Webhook, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM webhooks
		WHERE enabled = true AND (events = '[]'::jsonb OR events @> $1::jsonb)
	`

	eventsJSON, _ := json.Marshal([]string{eventType})
	return s.queryWebhooks(ctx, query, eventsJSON)
}

func (s *Service) GetWebhook(ctx context.Context, webhookID uuid.UUID) (*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1`

	w, err := scanWebhook(s.db.QueryRow(ctx, query, webhookID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return w, nil
}

// validate checks the URL and the event list
func validate(webhook *Webhook) error {
	u, err := url.Parse(webhook.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("invalid webhook url %q", webhook.URL))
	}
	for _, e := range webhook.Events {
		if !domain.ValidEventType(e) {
			return domain.ErrValidationFailed.WithError(fmt.Errorf("unknown event %q", e))
		}
	}
	if webhook.Name == "" {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("name is required"))
	}
	return nil
}

func (s *Service) CreateWebhook(ctx context.Context, webhook *Webhook) error {
	if err := validate(webhook); err != nil {
		return err
	}
	if webhook.Secret == "" {
		webhook.Secret = s.defaultSecret
	}
	if webhook.Secret == "" {
		secret, err := generateSecret(32)
		if err != nil {
			return fmt.Errorf("generate secret: %w", err)
		}
		webhook.Secret = secret
	}
	if webhook.Events == nil {
		webhook.Events = []string{}
	}

	eventsJSON, err := json.Marshal(webhook.Events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	query := `
		INSERT INTO webhooks (name, url, secret, events, enabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err = s.db.QueryRow(ctx, query,
		webhook.Name, webhook.URL,
		webhook.Secret, eventsJSON, webhook.Enabled,
	).Scan(&webhook.ID, &webhook.CreatedAt, &webhook.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	return nil
}

func (s *Service) DeleteWebhook(ctx context.Context, webhookID uuid.UUID) error {
	query := `DELETE FROM webhooks WHERE id = $1`

	result, err := s.db.Exec(ctx, query, webhookID)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrWebhookNotFound
	}

	return nil
}

// Dispatch sends event to every subscribed webhook and returns how many
// deliveries were attempted
func (s *Service) Dispatch(ctx context.Context, event EventPayload) (int, error) {
	webhooks, err := s.GetWebhooksByEvent(ctx, event.Type)
	if err != nil {
		return 0, err
	}

	var firstErr error
	for _, w := range webhooks {
		if err := s.Send(ctx, w, event); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("webhook %s: %w", w.ID, err)
		}
	}
	return len(webhooks), firstErr
}

func generateSecret(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
