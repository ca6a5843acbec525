package store

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/pkg/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleOrder() models.ScrapedOrder {
	return models.ScrapedOrder{
		OrderID:     "OD123456789012345",
		ProductName: "Noise Cancelling Headphones",
		Price:       "2,499",
		Status:      models.OrderShipped,
		OrderDate:   "2024-05-03",
		TrackingID:  "FMPP1234567890",
		ImageURL:    "https://img.example/p.jpg",
		Platform:    models.PlatformFlipkart,
	}
}

func TestUpsertOrdersIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewOrderStore(openTestDB(t))
	batch := []models.ScrapedOrder{sampleOrder()}

	_, err := s.UpsertOrders(ctx, "acc-1", batch)
	require.NoError(t, err)
	first, err := s.ListOrders(ctx, "acc-1")
	require.NoError(t, err)

	// a later clock must not leak into an unchanged row
	time.Sleep(5 * time.Millisecond)
	_, err = s.UpsertOrders(ctx, "acc-1", batch)
	require.NoError(t, err)
	second, err := s.ListOrders(ctx, "acc-1")
	require.NoError(t, err)

	require.Len(t, first, 1)
	assert.Equal(t, first, second)

	changed := sampleOrder()
	changed.Status = models.OrderDelivered
	time.Sleep(5 * time.Millisecond)
	_, err = s.UpsertOrders(ctx, "acc-1", []models.ScrapedOrder{changed})
	require.NoError(t, err)
	third, err := s.ListOrders(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, models.OrderDelivered, third[0].Status)
	assert.True(t, third[0].UpdatedAt.After(first[0].UpdatedAt))
}

func TestUpsertOrdersMergePolicy(t *testing.T) {
	ctx := context.Background()
	s := NewOrderStore(openTestDB(t))

	existing := sampleOrder()
	existing.TrackingID = "T1"
	existing.ImageURL = ""
	_, err := s.UpsertOrders(ctx, "acc-1", []models.ScrapedOrder{existing})
	require.NoError(t, err)

	incoming := sampleOrder()
	incoming.TrackingID = ""
	incoming.ImageURL = "I1"
	incoming.Status = models.OrderDelivered
	incoming.Price = "2,299"
	incoming.DeliveredDate = "2024-05-09"
	_, err = s.UpsertOrders(ctx, "acc-1", []models.ScrapedOrder{incoming})
	require.NoError(t, err)

	got, err := s.GetOrder(ctx, existing.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "T1", got.TrackingID)
	assert.Equal(t, "I1", got.ImageURL)
	assert.Equal(t, models.OrderDelivered, got.Status)
	assert.Equal(t, "2,299", got.Price)
	assert.Equal(t, "2024-05-09", got.DeliveredDate)
}

func TestUpsertOrdersSkipsMissingOrderID(t *testing.T) {
	ctx := context.Background()
	s := NewOrderStore(openTestDB(t))

	n, err := s.UpsertOrders(ctx, "acc-1", []models.ScrapedOrder{{ProductName: "orphan"}, sampleOrder()})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCardSaveAndClaim(t *testing.T) {
	ctx := context.Background()
	snapDir := filepath.Join(t.TempDir(), "snaps")
	s := NewCardStore(openTestDB(t), snapDir)

	first := &models.Card{Number: "4111111111111111", CVV: "123", Expiry: "12/29", Amount: "500"}
	region := &models.Region{X: 10, Y: 20, Width: 400, Height: 250}
	require.NoError(t, s.Save(ctx, first, region, []byte("png-bytes")))
	second := &models.Card{Number: "4222222222222222", CVV: "456", Expiry: "01/30", Amount: "1000"}
	require.NoError(t, s.Save(ctx, second, nil, nil))

	require.NotEmpty(t, first.SnapshotPath)
	assert.True(t, strings.HasPrefix(filepath.Base(first.SnapshotPath), "VCC_1111_"))
	data, err := os.ReadFile(first.SnapshotPath)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Empty(t, second.SnapshotPath)

	claimed, err := s.FetchOneUnused(ctx, "1000.00")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, second.ID, claimed.ID)
	assert.Equal(t, models.CardUsed, claimed.Status)
	assert.NotNil(t, claimed.UsedAt)

	none, err := s.FetchOneUnused(ctx, "1000")
	require.NoError(t, err)
	assert.Nil(t, none)

	next, err := s.FetchOneUnused(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, first.ID, next.ID)
	require.NotNil(t, next.Region)
	assert.Equal(t, *region, *next.Region)

	none, err = s.FetchOneUnused(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCardListDeleteExport(t *testing.T) {
	ctx := context.Background()
	s := NewCardStore(openTestDB(t), t.TempDir())

	a := &models.Card{Number: "4111111111111111", CVV: "123", Expiry: "12/29", Amount: "500"}
	b := &models.Card{Number: "4222222222222222", CVV: "456", Expiry: "01/30", Amount: "500"}
	require.NoError(t, s.Save(ctx, a, nil, nil))
	require.NoError(t, s.Save(ctx, b, nil, nil))

	var buf bytes.Buffer
	n, err := s.ExportCSV(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, buf.String(), "4111111111111111,12/29,123,500,Unused")

	deleted, err := s.DeleteMany(ctx, []string{a.ID, "unknown"})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].ID)
}
