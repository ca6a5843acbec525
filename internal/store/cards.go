package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shehryarbajwa/hypercart/pkg/models"
)

// CardStore persists generated cards and their snapshots
type CardStore struct {
	db          *sql.DB
	snapshotDir string
	now         func() time.Time
}

// NewCardStore creates a card store writing PNG snapshots under snapshotDir
func NewCardStore(db *sql.DB, snapshotDir string) *CardStore {
	return &CardStore{db: db, snapshotDir: snapshotDir, now: time.Now}
}

const cardColumns = `id, number, cvv, expiry, amount, status, snapshot_path, region_x, region_y, region_w, region_h, created_at, used_at`

// Save persists a new Unused card. When png is non-empty it is written as
// VCC_<last4>_<unixms>.png and its path recorded on the card.
func (s *CardStore) Save(ctx context.Context, card *models.Card, region *models.Region, png []byte) error {
	now := s.now()
	if card.ID == "" {
		card.ID = uuid.New().String()
	}
	card.Status = models.CardUnused
	card.CreatedAt = now
	card.Region = region

	if len(png) > 0 {
		if err := os.MkdirAll(s.snapshotDir, 0755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		path := filepath.Join(s.snapshotDir, fmt.Sprintf("VCC_%s_%d.png", card.Last4(), now.UnixMilli()))
		if err := os.WriteFile(path, png, 0644); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		card.SnapshotPath = path
	}

	var rx, ry, rw, rh sql.NullFloat64
	if region != nil {
		rx = sql.NullFloat64{Float64: region.X, Valid: true}
		ry = sql.NullFloat64{Float64: region.Y, Valid: true}
		rw = sql.NullFloat64{Float64: region.Width, Valid: true}
		rh = sql.NullFloat64{Float64: region.Height, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO cards (`+cardColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		card.ID, card.Number, card.CVV, card.Expiry, card.Amount, string(card.Status), card.SnapshotPath,
		rx, ry, rw, rh, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save card: %w", err)
	}
	return nil
}

// FetchOneUnused claims the oldest Unused card, optionally restricted to a
// numerically equal amount. The claim marks it Used with used_at set. Returns
// nil, nil when nothing matches.
func (s *CardStore) FetchOneUnused(ctx context.Context, amount string) (*models.Card, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE status = ? ORDER BY created_at, rowid`, string(models.CardUnused))
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	var picked *models.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		if amountMatches(amount, c.Amount) {
			picked = c
			break
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cards: %w", err)
	}
	if picked == nil {
		return nil, nil
	}

	usedAt := s.now()
	res, err := tx.ExecContext(ctx, `UPDATE cards SET status = ?, used_at = ? WHERE id = ? AND status = ?`,
		string(models.CardUsed), usedAt.UnixMilli(), picked.ID, string(models.CardUnused))
	if err != nil {
		return nil, fmt.Errorf("failed to mark card used: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit card claim: %w", err)
	}

	picked.Status = models.CardUsed
	picked.UsedAt = &usedAt
	return picked, nil
}

// ListAll returns every stored card, oldest first
func (s *CardStore) ListAll(ctx context.Context) ([]*models.Card, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var out []*models.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteMany removes cards by id and returns how many were deleted
func (s *CardStore) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cards: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted cards: %w", err)
	}
	return int(n), nil
}

// ExportCSV writes every card as CSV
func (s *CardStore) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	cards, err := s.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"number", "expiry", "cvv", "amount", "status", "created_at", "used_at", "snapshot"}); err != nil {
		return 0, err
	}
	for _, c := range cards {
		used := ""
		if c.UsedAt != nil {
			used = c.UsedAt.UTC().Format(time.RFC3339)
		}
		if err := cw.Write([]string{c.Number, c.Expiry, c.CVV, c.Amount, string(c.Status),
			c.CreatedAt.UTC().Format(time.RFC3339), used, c.SnapshotPath}); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(cards), cw.Error()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(r rowScanner) (*models.Card, error) {
	var c models.Card
	var status string
	var rx, ry, rw, rh sql.NullFloat64
	var created int64
	var used sql.NullInt64
	if err := r.Scan(&c.ID, &c.Number, &c.CVV, &c.Expiry, &c.Amount, &status, &c.SnapshotPath,
		&rx, &ry, &rw, &rh, &created, &used); err != nil {
		return nil, fmt.Errorf("failed to scan card: %w", err)
	}
	c.Status = models.CardStatus(status)
	c.CreatedAt = time.UnixMilli(created)
	if used.Valid {
		t := time.UnixMilli(used.Int64)
		c.UsedAt = &t
	}
	if rx.Valid && ry.Valid && rw.Valid && rh.Valid {
		c.Region = &models.Region{X: rx.Float64, Y: ry.Float64, Width: rw.Float64, Height: rh.Float64}
	}
	return &c, nil
}

// amountMatches compares amounts as numbers; an empty want matches anything
func amountMatches(want, have string) bool {
	if strings.TrimSpace(want) == "" {
		return true
	}
	w, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(want), ",", ""), 64)
	if err != nil {
		return false
	}
	h, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(have), ",", ""), 64)
	if err != nil {
		return false
	}
	return w == h
}
