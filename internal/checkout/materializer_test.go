package checkout

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cedra_storefront/internal/cart"
	"cedra_storefront/internal/models"
	"cedra_storefront/internal/repository"
)

var (
	productCols = []string{"id", "title", "price", "description", "category", "image", "created_at", "updated_at"}
	fixedNow    = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	shopper     = models.Identity{UserID: 5, Name: "Alice", Email: "alice@example.com"}
)

func setup(t *testing.T) (*Materializer, sqlmock.Sqlmock, *logtest.Hook) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	log, hook := logtest.NewNullLogger()
	m := NewMaterializer(repository.NewOrderRepository(db), log)
	m.now = func() time.Time { return fixedNow }
	return m, mock, hook
}

func expectOrderHeader(mock sqlmock.Sqlmock, orderID int64) {
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs(shopper.UserID, fixedNow, models.OrderStatusProcessing).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(orderID, fixedNow))
}

func expectProduct(mock sqlmock.Sqlmock, id int64, price string) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = $1 FOR SHARE")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(productCols).
			AddRow(id, "produit", price, "", "apparel", nil, fixedNow, fixedNow))
}

func expectMissingProduct(mock sqlmock.Sqlmock, id int64) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = $1 FOR SHARE")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(productCols))
}

func expectItem(mock sqlmock.Sqlmock, orderID int64, price string, qty int, itemID int64) {
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs(orderID, sqlmock.AnyArg(), decimal.RequireFromString(price), qty).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(itemID))
}

func expectTotal(mock sqlmock.Sqlmock, orderID int64, total string) {
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET total = $1 WHERE id = $2")).
		WithArgs(decimal.RequireFromString(total), orderID).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestCheckout_SnapshotsPriceAndClearsCart(t *testing.T) {
	m, mock, _ := setup(t)

	mock.ExpectBegin()
	expectOrderHeader(mock, 1)
	expectProduct(mock, 1, "9.99")
	expectItem(mock, 1, "9.99", 3, 10)
	expectTotal(mock, 1, "29.97")
	mock.ExpectCommit()

	c := cart.FromMap(map[string]int{"1": 3})
	res, err := m.Checkout(context.Background(), c, shopper)
	require.NoError(t, err)

	order := res.Order
	assert.Equal(t, "29.97", order.Total.StringFixed(2))
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(1), *order.Items[0].ProductID)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.True(t, order.Total.Equal(order.ItemsTotal()))
	assert.Empty(t, res.Skipped)
	assert.True(t, c.IsEmpty())
}

func TestCheckout_SecondAttemptHitsEmptyCart(t *testing.T) {
	m, mock, _ := setup(t)

	mock.ExpectBegin()
	expectOrderHeader(mock, 1)
	expectProduct(mock, 1, "9.99")
	expectItem(mock, 1, "9.99", 1, 10)
	expectTotal(mock, 1, "9.99")
	mock.ExpectCommit()

	c := cart.FromMap(map[string]int{"1": 1})
	_, err := m.Checkout(context.Background(), c, shopper)
	require.NoError(t, err)

	_, err = m.Checkout(context.Background(), c, shopper)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_SkipsDeletedProduct(t *testing.T) {
	m, mock, hook := setup(t)

	// panier {A:2, B:1}, B supprimé entre l'ajout et la commande
	mock.ExpectBegin()
	expectOrderHeader(mock, 7)
	expectProduct(mock, 1, "12.50")
	expectItem(mock, 7, "12.50", 2, 70)
	expectMissingProduct(mock, 2)
	expectTotal(mock, 7, "25.00")
	mock.ExpectCommit()

	c := cart.FromMap(map[string]int{"1": 2, "2": 1})
	res, err := m.Checkout(context.Background(), c, shopper)
	require.NoError(t, err)

	require.Len(t, res.Order.Items, 1)
	assert.Equal(t, int64(1), *res.Order.Items[0].ProductID)
	assert.Equal(t, "25.00", res.Order.Total.StringFixed(2))
	assert.Equal(t, []int64{2}, res.Skipped)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestCheckout_NoValidItemsRollsBackAndPrunes(t *testing.T) {
	m, mock, _ := setup(t)

	mock.ExpectBegin()
	expectOrderHeader(mock, 3)
	expectMissingProduct(mock, 4)
	mock.ExpectRollback()

	c := cart.FromMap(map[string]int{"4": 2})
	res, err := m.Checkout(context.Background(), c, shopper)
	assert.ErrorIs(t, err, ErrNoValidItems)
	assert.Nil(t, res)
	assert.True(t, c.IsEmpty())
}

func TestCheckout_EmptyCartTouchesNothing(t *testing.T) {
	m, _, _ := setup(t)

	_, err := m.Checkout(context.Background(), cart.New(), shopper)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_RequiresIdentity(t *testing.T) {
	m, _, _ := setup(t)

	_, err := m.Checkout(context.Background(), cart.FromMap(map[string]int{"1": 1}), models.Identity{})
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestCheckout_ItemFailureRollsBackAndKeepsCart(t *testing.T) {
	m, mock, _ := setup(t)

	mock.ExpectBegin()
	expectOrderHeader(mock, 1)
	expectProduct(mock, 1, "9.99")
	expectItem(mock, 1, "9.99", 1, 10)
	expectProduct(mock, 2, "5.00")
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_items")).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	c := cart.FromMap(map[string]int{"1": 1, "2": 2})
	_, err := m.Checkout(context.Background(), c, shopper)

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Equal(t, 1, c.Quantity(1))
	assert.Equal(t, 2, c.Quantity(2))
}

func TestCheckout_CommitFailureKeepsCart(t *testing.T) {
	m, mock, _ := setup(t)

	mock.ExpectBegin()
	expectOrderHeader(mock, 1)
	expectProduct(mock, 1, "9.99")
	expectItem(mock, 1, "9.99", 1, 10)
	expectTotal(mock, 1, "9.99")
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	c := cart.FromMap(map[string]int{"1": 1})
	_, err := m.Checkout(context.Background(), c, shopper)

	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 1, c.Quantity(1))
}

func TestCheckout_BeginFailure(t *testing.T) {
	m, mock, _ := setup(t)

	mock.ExpectBegin().WillReturnError(errors.New("pool épuisé"))

	c := cart.FromMap(map[string]int{"1": 1})
	_, err := m.Checkout(context.Background(), c, shopper)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.False(t, c.IsEmpty())
}

func TestCheckout_TotalAboveColumnBoundRollsBack(t *testing.T) {
	m, mock, _ := setup(t)

	mock.ExpectBegin()
	expectOrderHeader(mock, 1)
	expectProduct(mock, 1, "9999999999.99")
	expectItem(mock, 1, "9999999999.99", 2, 10)
	mock.ExpectRollback()

	c := cart.FromMap(map[string]int{"1": 2})
	res, err := m.Checkout(context.Background(), c, shopper)

	assert.ErrorIs(t, err, ErrOrderTooLarge)
	assert.Nil(t, res)
	assert.Equal(t, 2, c.Quantity(1))
}
