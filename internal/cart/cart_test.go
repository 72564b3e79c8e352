package cart

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cedra_storefront/internal/models"
)

type fakeCatalog struct {
	products map[int64]models.Product
	err      error
	asked    []int64
}

func (f *fakeCatalog) GetMany(_ context.Context, ids []int64) (map[int64]models.Product, error) {
	f.asked = ids
	if f.err != nil {
		return nil, f.err
	}
	out := map[int64]models.Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func product(id int64, price string) models.Product {
	return models.Product{ID: id, Title: "p", Price: decimal.RequireFromString(price)}
}

func TestAddAccumulates(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(1, 2))
	require.NoError(t, c.Add(1, 3))
	require.NoError(t, c.Add(2, 1))

	assert.Equal(t, 5, c.Quantity(1))
	assert.Equal(t, 1, c.Quantity(2))
	assert.Equal(t, 2, c.Len())
}

func TestAddRejectsNonPositive(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.Add(1, 0), ErrInvalidQuantity)
	assert.ErrorIs(t, c.Add(1, -4), ErrInvalidQuantity)
	assert.True(t, c.IsEmpty())
}

func TestAddRejectsQuantityAboveBound(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.Add(1, math.MaxInt), ErrInvalidQuantity)
	assert.ErrorIs(t, c.Add(1, math.MaxInt32+1), ErrInvalidQuantity)
	assert.True(t, c.IsEmpty())

	require.NoError(t, c.Add(1, MaxQuantity-1))
	assert.ErrorIs(t, c.Add(1, 2), ErrInvalidQuantity)
	assert.Equal(t, MaxQuantity-1, c.Quantity(1))

	require.NoError(t, c.Add(1, 1))
	assert.Equal(t, MaxQuantity, c.Quantity(1))
	assert.ErrorIs(t, c.Add(1, 1), ErrInvalidQuantity)
	assert.Equal(t, MaxQuantity, c.Quantity(1))
}

func TestFromMapClampsOversizedQuantity(t *testing.T) {
	c := FromMap(map[string]int{"1": math.MaxInt, "2": MaxQuantity + 1})
	assert.Equal(t, MaxQuantity, c.Quantity(1))
	assert.Equal(t, MaxQuantity, c.Quantity(2))
}

func TestRemoveDeletesWholeLine(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(1, 4))
	c.Remove(1)
	c.Remove(42) // absent: sans effet

	assert.Equal(t, 0, c.Quantity(1))
	assert.True(t, c.IsEmpty())
}

// Toute séquence add/remove donne la somme des ajouts depuis le dernier remove
func TestAddRemoveSequence(t *testing.T) {
	type op struct {
		remove bool
		id     int64
		qty    int
	}
	ops := []op{
		{id: 1, qty: 2}, {id: 2, qty: 1}, {id: 1, qty: 1},
		{remove: true, id: 1}, {id: 1, qty: 5}, {remove: true, id: 3}, {id: 2, qty: 2},
	}

	c := New()
	expected := map[int64]int{}
	for _, o := range ops {
		if o.remove {
			c.Remove(o.id)
			delete(expected, o.id)
			continue
		}
		require.NoError(t, c.Add(o.id, o.qty))
		expected[o.id] += o.qty
	}

	for id, qty := range expected {
		assert.Equal(t, qty, c.Quantity(id))
	}
	assert.Equal(t, len(expected), c.Len())
	for _, l := range c.Lines() {
		assert.Positive(t, l.Quantity)
	}
}

func TestFromMapDropsInvalidEntries(t *testing.T) {
	c := FromMap(map[string]int{"1": 2, "2": 0, "3": -1, "abc": 4, "007": 1})

	assert.Equal(t, []Line{{ProductID: 1, Quantity: 2}, {ProductID: 7, Quantity: 1}}, c.Lines())
}

func TestLinesSortedNumerically(t *testing.T) {
	c := FromMap(map[string]int{"10": 1, "2": 1, "1": 1})

	lines := c.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, int64(1), lines[0].ProductID)
	assert.Equal(t, int64(2), lines[1].ProductID)
	assert.Equal(t, int64(10), lines[2].ProductID)
}

func TestMapIsACopy(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(1, 1))
	m := c.Map()
	m["1"] = 99
	assert.Equal(t, 1, c.Quantity(1))
}

func TestViewUsesCurrentPricesAndDropsMissing(t *testing.T) {
	c := FromMap(map[string]int{"1": 3, "2": 1, "5": 2})
	catalog := &fakeCatalog{products: map[int64]models.Product{
		1: product(1, "9.99"),
		5: product(5, "0.50"),
	}}

	view, err := c.View(context.Background(), catalog)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 5}, catalog.asked)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, "29.97", view.Lines[0].LineTotal.StringFixed(2))
	assert.Equal(t, int64(5), view.Lines[1].Product.ID)
	assert.Equal(t, "30.97", view.Subtotal.StringFixed(2))
	assert.Equal(t, 5, view.Count)

	// la vue ne modifie pas le panier
	assert.Equal(t, 1, c.Quantity(2))
}

func TestViewEmptyCartSkipsCatalog(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("ne doit pas être appelé")}

	view, err := New().View(context.Background(), catalog)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.True(t, view.Subtotal.IsZero())
	assert.Nil(t, catalog.asked)
}

func TestViewPropagatesCatalogError(t *testing.T) {
	c := FromMap(map[string]int{"1": 1})
	boom := errors.New("connexion perdue")

	_, err := c.View(context.Background(), &fakeCatalog{err: boom})
	assert.ErrorIs(t, err, boom)
}
