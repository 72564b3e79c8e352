package cart

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	store := sessions.NewCookieStore([]byte("clé-de-test-suffisamment-longue"))

	req := httptest.NewRequest(http.MethodPost, "/cart/add/1", nil)
	rec := httptest.NewRecorder()
	s, err := store.Get(req, "cedra_session")
	require.NoError(t, err)

	c := Load(s)
	require.NoError(t, c.Add(1, 3))
	Save(s, c)
	require.NoError(t, s.Save(req, rec))

	next := httptest.NewRequest(http.MethodGet, "/cart", nil)
	for _, cookie := range rec.Result().Cookies() {
		next.AddCookie(cookie)
	}
	s2, err := store.Get(next, "cedra_session")
	require.NoError(t, err)

	assert.Equal(t, 3, Load(s2).Quantity(1))
}

func TestSaveEmptyCartRemovesKey(t *testing.T) {
	s := sessions.NewSession(sessions.NewCookieStore([]byte("k")), "cedra_session")
	s.Values[sessionKey] = map[string]int{"1": 1}

	Save(s, New())
	_, ok := s.Values[sessionKey]
	assert.False(t, ok)
}

func TestLoadIgnoresForeignValue(t *testing.T) {
	s := sessions.NewSession(sessions.NewCookieStore([]byte("k")), "cedra_session")
	s.Values[sessionKey] = "pas un panier"

	assert.True(t, Load(s).IsEmpty())
}
