package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"adcast/internal/campaign"
	"adcast/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- campaigns ----

func (s *sqliteStore) CreateCampaign(ctx context.Context, spec *campaign.Spec) error {
	msg, err := json.Marshal(spec.Message)
	if err != nil {
		return err
	}
	include, err := json.Marshal(spec.Include)
	if err != nil {
		return err
	}
	exclude, err := json.Marshal(spec.Exclude)
	if err != nil {
		return err
	}
	types, err := json.Marshal(spec.Types)
	if err != nil {
		return err
	}
	created := spec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO campaigns(id, owner, message, mode, include_ids, exclude_ids, types,
		                       rate_per_min, status, repeat_enabled, repeat_rest_seconds, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		spec.ID, spec.Owner, string(msg), string(spec.Mode), string(include), string(exclude), string(types),
		spec.RatePerMin, string(spec.Status), boolInt(spec.Repeat.Enabled), spec.Repeat.RestSeconds,
		created.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Campaign(ctx context.Context, id string) (*campaign.Spec, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner, message, mode, include_ids, exclude_ids, types,
		        rate_per_min, status, repeat_enabled, repeat_rest_seconds, created_at, completed_at
		   FROM campaigns WHERE id = ?`, id)

	var (
		spec      campaign.Spec
		msg       string
		mode      string
		include   string
		exclude   string
		types     string
		status    string
		repeatEn  int
		createdAt string
		doneAt    sql.NullString
	)
	err := row.Scan(&spec.ID, &spec.Owner, &msg, &mode, &include, &exclude, &types,
		&spec.RatePerMin, &status, &repeatEn, &spec.Repeat.RestSeconds, &createdAt, &doneAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(msg), &spec.Message); err != nil {
		return nil, fmt.Errorf("campaign %s: decode message: %w", id, err)
	}
	if err := json.Unmarshal([]byte(include), &spec.Include); err != nil {
		return nil, fmt.Errorf("campaign %s: decode include: %w", id, err)
	}
	if err := json.Unmarshal([]byte(exclude), &spec.Exclude); err != nil {
		return nil, fmt.Errorf("campaign %s: decode exclude: %w", id, err)
	}
	if types != "" && types != "null" {
		if err := json.Unmarshal([]byte(types), &spec.Types); err != nil {
			return nil, fmt.Errorf("campaign %s: decode types: %w", id, err)
		}
	}
	spec.Mode = campaign.TargetMode(mode)
	spec.Status = campaign.Status(status)
	spec.Repeat.Enabled = repeatEn != 0
	spec.CreatedAt = parseTime(createdAt)
	if doneAt.Valid {
		t := parseTime(doneAt.String)
		spec.CompletedAt = &t
	}
	return &spec, nil
}

func (s *sqliteStore) CampaignStatus(ctx context.Context, id string) (campaign.Status, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return campaign.Status(status), nil
}

func (s *sqliteStore) SetCampaignStatus(ctx context.Context, id string, st campaign.Status) error {
	var doneAt any
	if st == campaign.StatusCompleted {
		doneAt = time.Now().Format(time.RFC3339Nano)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET status = ?, completed_at = COALESCE(?, completed_at) WHERE id = ?`,
		string(st), doneAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- accounts ----

func (s *sqliteStore) CreateAccount(ctx context.Context, acc campaign.Account) error {
	created := acc.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts(id, owner, label, credential, active, created_at)
		 VALUES(?,?,?,?,?,?)`,
		acc.ID, acc.Owner, acc.Label, acc.Credential, boolInt(acc.Active), created.Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) ActiveAccounts(ctx context.Context, owner int64) ([]campaign.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, label, credential, active, created_at, last_used_at
		   FROM accounts WHERE owner = ? AND active = 1 ORDER BY created_at`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []campaign.Account
	for rows.Next() {
		var (
			acc      campaign.Account
			active   int
			created  string
			lastUsed sql.NullString
		)
		if err := rows.Scan(&acc.ID, &acc.Owner, &acc.Label, &acc.Credential, &active, &created, &lastUsed); err != nil {
			return nil, err
		}
		acc.Active = active != 0
		acc.CreatedAt = parseTime(created)
		if lastUsed.Valid {
			acc.LastUsedAt = parseTime(lastUsed.String)
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) TouchAccount(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_used_at = ? WHERE id = ?`, at.Format(time.RFC3339Nano), id)
	return err
}

// ---- event log ----

func (s *sqliteStore) AppendEvent(ctx context.Context, rec campaign.EventRecord) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(owner, campaign_id, at, kind, chat_id, chat_type, chat_title, reason, detail, wait_seconds, sender)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		rec.Owner, rec.CampaignID, rec.At.Format(time.RFC3339Nano), string(rec.Kind),
		rec.ChatID, string(rec.ChatType), rec.ChatTitle, rec.Reason, rec.Detail, rec.WaitSeconds, rec.Sender,
	)
	return err
}

func (s *sqliteStore) EventCounts(ctx context.Context, owner int64, campaignID string) (map[campaign.EventKind]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM events WHERE owner = ? AND (? = '' OR campaign_id = ?) GROUP BY kind`,
		owner, campaignID, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[campaign.EventKind]int{}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[campaign.EventKind(kind)] = n
	}
	return out, rows.Err()
}

func (s *sqliteStore) DistinctReached(ctx context.Context, owner int64, campaignID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT chat_id) FROM events
		  WHERE owner = ? AND (? = '' OR campaign_id = ?) AND kind IN (?, ?)`,
		owner, campaignID, campaignID,
		string(campaign.EventSent), string(campaign.EventSentAfterFloodWait)).Scan(&n)
	return n, err
}

func (s *sqliteStore) TopReasons(ctx context.Context, owner int64, campaignID string, kind campaign.EventKind, n int) ([]ReasonCount, error) {
	if n <= 0 {
		n = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT CASE WHEN reason = '' THEN 'unknown' ELSE reason END AS r, COUNT(*) AS n
		   FROM events
		  WHERE owner = ? AND (? = '' OR campaign_id = ?) AND kind = ?
		  GROUP BY r ORDER BY n DESC, r LIMIT ?`,
		owner, campaignID, campaignID, string(kind), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReasonCount
	for rows.Next() {
		var rc ReasonCount
		if err := rows.Scan(&rc.Reason, &rc.Count); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) RecentEvents(ctx context.Context, owner int64, campaignID string, n int) ([]campaign.EventRecord, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner, campaign_id, at, kind, chat_id, chat_type, chat_title, reason, detail, wait_seconds, sender
		   FROM events
		  WHERE owner = ? AND (? = '' OR campaign_id = ?)
		  ORDER BY seq DESC LIMIT ?`,
		owner, campaignID, campaignID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []campaign.EventRecord
	for rows.Next() {
		var (
			rec      campaign.EventRecord
			at       string
			kind     string
			chatType string
		)
		if err := rows.Scan(&rec.Owner, &rec.CampaignID, &at, &kind, &rec.ChatID, &chatType,
			&rec.ChatTitle, &rec.Reason, &rec.Detail, &rec.WaitSeconds, &rec.Sender); err != nil {
			return nil, err
		}
		rec.At = parseTime(at)
		rec.Kind = campaign.EventKind(kind)
		rec.ChatType = campaign.ChatType(chatType)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) TypeActivity(ctx context.Context, owner int64, campaignID string) (map[campaign.ChatType]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT CASE WHEN chat_type = '' THEN 'unknown' ELSE chat_type END AS t, COUNT(*)
		   FROM events
		  WHERE owner = ? AND (? = '' OR campaign_id = ?) AND kind IN (?, ?, ?)
		  GROUP BY t`,
		owner, campaignID, campaignID,
		string(campaign.EventAttempt), string(campaign.EventSent), string(campaign.EventSentAfterFloodWait))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[campaign.ChatType]int{}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out[campaign.ChatType(t)] = n
	}
	return out, rows.Err()
}

// ---- maintenance ----

func (s *sqliteStore) StaleRunning(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM campaigns WHERE status = ? AND created_at < ?`,
		string(campaign.StatusRunning), before.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE at < ?`, before.Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- helpers ----

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
