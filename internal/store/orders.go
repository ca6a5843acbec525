package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shehryarbajwa/hypercart/pkg/models"
)

// OrderStore persists scraped orders keyed by external order id
type OrderStore struct {
	db *sql.DB
}

// NewOrderStore creates an order store
func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

// status, price, dates and product name are always refreshed; tracking id and
// image url only move forward when the incoming value is non-empty. A row
// whose merged columns would not change is left untouched, updated_at
// included.
const upsertOrderSQL = `
INSERT INTO orders (account_id, platform, order_id, product_name, price, status, order_date, delivered_date, tracking_id, image_url, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(order_id) DO UPDATE SET
    status = excluded.status,
    price = excluded.price,
    order_date = excluded.order_date,
    delivered_date = excluded.delivered_date,
    product_name = excluded.product_name,
    tracking_id = CASE WHEN excluded.tracking_id != '' THEN excluded.tracking_id ELSE orders.tracking_id END,
    image_url = CASE WHEN excluded.image_url != '' THEN excluded.image_url ELSE orders.image_url END,
    updated_at = excluded.updated_at
WHERE orders.status IS NOT excluded.status
    OR orders.price IS NOT excluded.price
    OR orders.order_date IS NOT excluded.order_date
    OR orders.delivered_date IS NOT excluded.delivered_date
    OR orders.product_name IS NOT excluded.product_name
    OR (excluded.tracking_id != '' AND orders.tracking_id IS NOT excluded.tracking_id)
    OR (excluded.image_url != '' AND orders.image_url IS NOT excluded.image_url)`

// UpsertOrders stores a scraped batch for accountID. Records without an order id are skipped.
func (s *OrderStore) UpsertOrders(ctx context.Context, accountID string, orders []models.ScrapedOrder) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertOrderSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	n := 0
	for _, o := range orders {
		if o.OrderID == "" {
			continue
		}
		platform := o.Platform
		if platform == "" {
			platform = models.PlatformFlipkart
		}
		if _, err := stmt.ExecContext(ctx, accountID, platform, o.OrderID, o.ProductName, o.Price,
			string(o.Status), o.OrderDate, o.DeliveredDate, o.TrackingID, o.ImageURL, now); err != nil {
			return n, fmt.Errorf("failed to upsert order %s: %w", o.OrderID, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit orders: %w", err)
	}
	return n, nil
}

// ListOrders returns stored orders, optionally filtered by account
func (s *OrderStore) ListOrders(ctx context.Context, accountID string) ([]models.Order, error) {
	query := `SELECT id, account_id, platform, order_id, product_name, quantity, price, status,
		order_date, delivered_date, tracking_id, image_url, delivery_otp, updated_at FROM orders`
	var args []any
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY order_date DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var out []models.Order
	for rows.Next() {
		var o models.Order
		var status string
		var updated int64
		if err := rows.Scan(&o.ID, &o.AccountID, &o.Platform, &o.OrderID, &o.ProductName, &o.Quantity,
			&o.Price, &status, &o.OrderDate, &o.DeliveredDate, &o.TrackingID, &o.ImageURL,
			&o.DeliveryOTP, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Status = models.OrderStatus(status)
		o.UpdatedAt = time.UnixMilli(updated)
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetOrder returns one order by its external id
func (s *OrderStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var o models.Order
	var status string
	var updated int64
	err := s.db.QueryRowContext(ctx, `SELECT id, account_id, platform, order_id, product_name, quantity, price, status,
		order_date, delivered_date, tracking_id, image_url, delivery_otp, updated_at FROM orders WHERE order_id = ?`, orderID).
		Scan(&o.ID, &o.AccountID, &o.Platform, &o.OrderID, &o.ProductName, &o.Quantity,
			&o.Price, &status, &o.OrderDate, &o.DeliveredDate, &o.TrackingID, &o.ImageURL,
			&o.DeliveryOTP, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	o.Status = models.OrderStatus(status)
	o.UpdatedAt = time.UnixMilli(updated)
	return &o, nil
}
