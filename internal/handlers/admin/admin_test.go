package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cedra_storefront/internal/accounts"
	"cedra_storefront/internal/middleware"
	"cedra_storefront/internal/models"
	"cedra_storefront/internal/repository"
	"cedra_storefront/internal/services"
	"cedra_storefront/internal/session"
	"cedra_storefront/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	adminID = models.Identity{UserID: 1, Name: "Admin", Email: "admin@cedra.local", IsAdmin: true}
	alice   = models.Identity{UserID: 2, Name: "Alice", Email: "alice@example.com"}
)

type memUsers struct {
	users []*models.User
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	u.ID = int64(len(m.users) + 1)
	m.users = append(m.users, u)
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) CountAdmins(context.Context) (int, error) { return 1, nil }

func (m *memUsers) List(context.Context) ([]models.User, error) {
	out := make([]models.User, len(m.users))
	for i, u := range m.users {
		out[i] = *u
	}
	return out, nil
}

func (m *memUsers) Count(context.Context) (int, error) { return len(m.users), nil }

type memOrders []models.Order

func (m memOrders) ListAll(context.Context) ([]models.Order, error) { return m, nil }
func (m memOrders) Count(context.Context) (int, error)              { return len(m), nil }

func (m memOrders) TotalSales(context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, o := range m {
		total = total.Add(o.Total)
	}
	return total, nil
}

type memProducts struct {
	mu     sync.Mutex
	items  map[int64]models.Product
	nextID int64
}

func (m *memProducts) Search(context.Context, repository.ProductFilter) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Product{}
	for _, p := range m.items {
		out = append(out, p)
	}
	return out, nil
}

func (m *memProducts) GetByID(_ context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *memProducts) Create(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	m.items[p.ID] = *p
	return nil
}

func (m *memProducts) Update(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[p.ID]; !ok {
		return repository.ErrNotFound
	}
	m.items[p.ID] = *p
	return nil
}

func (m *memProducts) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memProducts) Count(context.Context) (int, error) { return len(m.items), nil }

type memAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (m *memAudit) Write(_ context.Context, e models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) List(_ context.Context, f utils.AuditFilter) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AuditLog{}
	for _, e := range m.entries {
		if f.Resource != "" && e.Resource != f.Resource {
			continue
		}
		if f.ResourceID != "" && e.ResourceID != f.ResourceID {
			continue
		}
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

type fixture struct {
	router   *gin.Engine
	products *memProducts
	audit    *utils.AuditLogger
	auditLog *memAudit
	dir      string
}

func newFixture(t *testing.T, who models.Identity) *fixture {
	t.Helper()
	log, _ := logtest.NewNullLogger()

	hash, err := utils.HashPassword("admin-secret")
	require.NoError(t, err)
	users := &memUsers{users: []*models.User{
		{ID: 1, Name: "Admin", Email: "admin@cedra.local", PasswordHash: hash, IsAdmin: true},
		{ID: 2, Name: "Alice", Email: "alice@example.com", PasswordHash: hash},
	}}
	products := &memProducts{items: map[int64]models.Product{
		1: {ID: 1, Title: "T-shirt", Price: decimal.RequireFromString("9.99"), Category: "apparel"},
	}, nextID: 1}
	orders := memOrders{
		{ID: 1, UserID: 2, Total: decimal.RequireFromString("29.97")},
		{ID: 2, UserID: 2, Total: decimal.RequireFromString("7.50")},
	}
	auditLog := &memAudit{}
	audit := utils.NewAuditLoggerWithWriter(auditLog, log)
	dir := t.TempDir()

	h := NewHandler(Deps{
		Accounts: accounts.NewService(users, log),
		Users:    users,
		Orders:   orders,
		Products: products,
		Images:   services.NewLocalImageStore(dir),
		Audit:    audit,
		Store:    session.NewStore("secret-de-test", false),
		Log:      log,
	})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if who.UserID != 0 {
			middleware.SetIdentity(c, who)
		}
		c.Next()
	})
	r.POST("/admin/login", h.Login)
	g := r.Group("/admin", middleware.RequireAdmin())
	g.GET("/dashboard", h.Dashboard)
	g.GET("/dashboard/advanced", h.DashboardAdvanced)
	g.GET("/users", h.Users)
	g.GET("/orders", h.Orders)
	g.GET("/products", h.Products)
	g.POST("/products/add", middleware.AuditCriticalActions(audit, utils.ACTION_PRODUCT_CREATE, utils.RESOURCE_PRODUCT), h.AddProduct)
	g.POST("/products/edit/:id", middleware.AuditCriticalActions(audit, utils.ACTION_PRODUCT_UPDATE, utils.RESOURCE_PRODUCT), h.EditProduct)
	g.POST("/products/delete/:id", middleware.AuditCriticalActions(audit, utils.ACTION_PRODUCT_DELETE, utils.RESOURCE_PRODUCT), h.DeleteProduct)
	g.GET("/audit", h.AuditLogs)
	g.GET("/audit/:resource/:resource_id", h.AuditLogsByResource)

	return &fixture{router: r, products: products, audit: audit, auditLog: auditLog, dir: dir}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(target string) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (f *fixture) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req)
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

func (f *fixture) postMultipart(t *testing.T, target string, fields map[string]string, file *upload) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, file.name))
		h.Set("Content-Type", file.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return f.do(req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAdminRoutesDenyNonAdmin(t *testing.T) {
	rec := newFixture(t, alice).get("/admin/dashboard")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = newFixture(t, models.Identity{}).get("/admin/users")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/admin/login", decode(t, rec)["redirect"])
}

func TestAdminLogin(t *testing.T) {
	f := newFixture(t, models.Identity{})

	rec := f.postForm("/admin/login", url.Values{"email": {"admin@cedra.local"}, "password": {"admin-secret"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/admin/dashboard", decode(t, rec)["redirect"])
	assert.NotEmpty(t, rec.Result().Cookies())

	rec = f.postForm("/admin/login", url.Values{"email": {"alice@example.com"}, "password": {"admin-secret"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.postForm("/admin/login", url.Values{"email": {"admin@cedra.local"}, "password": {"faux"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusBadRequest, f.postForm("/admin/login", url.Values{}).Code)
}

func TestDashboards(t *testing.T) {
	f := newFixture(t, adminID)

	body := decode(t, f.get("/admin/dashboard"))
	assert.EqualValues(t, 1, body["total_products"])
	assert.EqualValues(t, 2, body["total_users"])
	assert.EqualValues(t, 2, body["total_orders"])

	stats := decode(t, f.get("/admin/dashboard/advanced"))["stats"].(map[string]any)
	assert.Equal(t, "37.47", stats["total_sales"])
}

func TestAdminLists(t *testing.T) {
	f := newFixture(t, adminID)

	assert.Len(t, decode(t, f.get("/admin/users"))["users"], 2)
	assert.Len(t, decode(t, f.get("/admin/orders"))["orders"], 2)
	assert.Len(t, decode(t, f.get("/admin/products"))["products"], 1)
	assert.NotContains(t, f.get("/admin/users").Body.String(), "admin-secret")
}

func TestAddProductWithImage(t *testing.T) {
	f := newFixture(t, adminID)

	rec := f.postMultipart(t, "/admin/products/add",
		map[string]string{"title": "Mug", "price": "7.50", "category": "kitchen", "description": "céramique"},
		&upload{name: "mug.png", contentType: "image/png", data: []byte("\x89PNG fake")},
	)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	p, err := f.products.GetByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Mug", p.Title)
	assert.True(t, decimal.RequireFromString("7.5").Equal(p.Price))
	require.NotEmpty(t, p.Image)
	_, err = os.Stat(filepath.Join(f.dir, filepath.FromSlash(p.Image)))
	assert.NoError(t, err)

	f.audit.Wait()
	require.Len(t, f.auditLog.entries, 1)
	entry := f.auditLog.entries[0]
	assert.Equal(t, utils.ACTION_PRODUCT_CREATE, entry.Action)
	assert.Equal(t, "2", entry.ResourceID)
	assert.True(t, entry.Success)
	assert.Contains(t, entry.NewValue, "Mug")
}

func TestAddProductValidation(t *testing.T) {
	f := newFixture(t, adminID)

	rec := f.postMultipart(t, "/admin/products/add", map[string]string{"title": "", "price": "-1"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs := decode(t, rec)["errors"].(map[string]any)
	assert.Contains(t, errs, "title")
	assert.Contains(t, errs, "price")

	rec = f.postMultipart(t, "/admin/products/add", map[string]string{"title": "X", "price": "abc"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.postMultipart(t, "/admin/products/add",
		map[string]string{"title": "X", "price": "1"},
		&upload{name: "x.svg", contentType: "image/svg+xml", data: []byte("<svg/>")},
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.audit.Wait()
	for _, e := range f.auditLog.entries {
		assert.False(t, e.Success)
	}
	_, err := f.products.GetByID(context.Background(), 2)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEditProductKeepsImageWhenNoneUploaded(t *testing.T) {
	f := newFixture(t, adminID)
	f.products.items[1] = models.Product{ID: 1, Title: "T-shirt", Price: decimal.RequireFromString("9.99"), Image: "products/old.png"}

	rec := f.postForm("/admin/products/edit/1", url.Values{"title": {"T-shirt bio"}, "price": {"12"}, "category": {"apparel"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p, _ := f.products.GetByID(context.Background(), 1)
	assert.Equal(t, "T-shirt bio", p.Title)
	assert.Equal(t, "products/old.png", p.Image)
	assert.True(t, decimal.NewFromInt(12).Equal(p.Price))

	f.audit.Wait()
	require.Len(t, f.auditLog.entries, 1)
	assert.Contains(t, f.auditLog.entries[0].OldValue, "9.99")
}

func TestEditAndDeleteMissingProduct(t *testing.T) {
	f := newFixture(t, adminID)

	assert.Equal(t, http.StatusNotFound, f.postForm("/admin/products/edit/42", url.Values{"title": {"X"}, "price": {"1"}}).Code)
	assert.Equal(t, http.StatusNotFound, f.postForm("/admin/products/delete/42", url.Values{}).Code)
	assert.Equal(t, http.StatusBadRequest, f.postForm("/admin/products/delete/abc", url.Values{}).Code)
}

func TestDeleteProduct(t *testing.T) {
	f := newFixture(t, adminID)

	rec := f.postForm("/admin/products/delete/1", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := f.products.GetByID(context.Background(), 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	f.audit.Wait()
	rec = f.get("/admin/audit/product/1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["total"])
}

func TestAuditLogsFilters(t *testing.T) {
	f := newFixture(t, adminID)
	f.auditLog.entries = []models.AuditLog{
		{ID: "a", Resource: utils.RESOURCE_ORDER, Timestamp: time.Now().Add(-time.Hour)},
		{ID: "b", Resource: utils.RESOURCE_PRODUCT, Timestamp: time.Now()},
	}

	body := decode(t, f.get("/admin/audit?resource=order&limit=10"))
	assert.EqualValues(t, 1, body["total"])
	assert.Equal(t, false, body["partial"])

	body = decode(t, f.get("/admin/audit?limit=1"))
	assert.EqualValues(t, 1, body["total"])
	assert.Equal(t, true, body["partial"])

	assert.Equal(t, http.StatusBadRequest, f.get("/admin/audit?success=peut-etre").Code)
	assert.Equal(t, http.StatusBadRequest, f.get("/admin/audit?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, f.get("/admin/audit?user_id=x").Code)
}
