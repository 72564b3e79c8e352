package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/sirupsen/logrus"

	"cedra_storefront/internal/models"
)

// Actions d'audit
const (
	ACTION_PRODUCT_CREATE = "product.create"
	ACTION_PRODUCT_UPDATE = "product.update"
	ACTION_PRODUCT_DELETE = "product.delete"

	ACTION_ORDER_CREATE = "order.create"

	ACTION_USER_CREATE = "user.create"

	ACTION_LOGIN_SUCCESS = "auth.login_success"
	ACTION_LOGIN_FAILED  = "auth.login_failed"
	ACTION_LOGOUT        = "auth.logout"
	ACTION_TOKEN_ISSUED  = "auth.token_issued"
	ACTION_ADMIN_ACCESS  = "admin.access"
)

// Ressources d'audit
const (
	RESOURCE_PRODUCT = "product"
	RESOURCE_ORDER   = "order"
	RESOURCE_USER    = "user"
	RESOURCE_AUTH    = "auth"
)

// AuditWriter persiste une entrée du journal d'audit
type AuditWriter interface {
	Write(ctx context.Context, entry models.AuditLog) error
}

type scyllaAuditWriter struct {
	session *gocql.Session
}

const insertAuditLog = `INSERT INTO audit_logs (
	id, user_id, user_email, action, resource, resource_id,
	old_value, new_value, ip_address, user_agent, success,
	error_msg, timestamp, request_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (w scyllaAuditWriter) Write(ctx context.Context, e models.AuditLog) error {
	id, err := gocql.ParseUUID(e.ID)
	if err != nil {
		id = gocql.TimeUUID()
	}
	return w.session.Query(insertAuditLog,
		id, e.UserID, e.UserEmail, e.Action,
		e.Resource, e.ResourceID, e.OldValue, e.NewValue,
		e.IPAddress, e.UserAgent, e.Success, e.ErrorMsg,
		e.Timestamp, e.RequestID,
	).WithContext(ctx).Exec()
}

// AuditFilter restreint la consultation du journal; les champs vides sont ignorés
type AuditFilter struct {
	UserID     int64
	Action     string
	Resource   string
	ResourceID string
	Success    *bool
	Limit      int
}

const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 500
)

var ErrAuditUnavailable = errors.New("journal d'audit non configuré")

// AuditReader relit le journal pour le back-office
type AuditReader interface {
	List(ctx context.Context, f AuditFilter) ([]models.AuditLog, error)
}

const selectAuditLogs = `SELECT id, user_id, user_email, action, resource, resource_id,
	old_value, new_value, ip_address, user_agent, success,
	error_msg, timestamp, request_id FROM audit_logs`

func (w scyllaAuditWriter) List(ctx context.Context, f AuditFilter) ([]models.AuditLog, error) {
	var (
		conditions []string
		args       []any
	)
	if f.UserID != 0 {
		conditions = append(conditions, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, f.Action)
	}
	if f.Resource != "" {
		conditions = append(conditions, "resource = ?")
		args = append(args, f.Resource)
	}
	if f.ResourceID != "" {
		conditions = append(conditions, "resource_id = ?")
		args = append(args, f.ResourceID)
	}
	if f.Success != nil {
		conditions = append(conditions, "success = ?")
		args = append(args, *f.Success)
	}

	query := selectAuditLogs
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " LIMIT ?"
	args = append(args, f.Limit)
	if len(conditions) > 0 {
		query += " ALLOW FILTERING"
	}

	iter := w.session.Query(query, args...).WithContext(ctx).Iter()

	logs := []models.AuditLog{}
	var (
		e  models.AuditLog
		id gocql.UUID
	)
	for iter.Scan(&id, &e.UserID, &e.UserEmail,
		&e.Action, &e.Resource, &e.ResourceID,
		&e.OldValue, &e.NewValue, &e.IPAddress,
		&e.UserAgent, &e.Success, &e.ErrorMsg,
		&e.Timestamp, &e.RequestID) {
		e.ID = id.String()
		logs = append(logs, e)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("lecture audit_logs: %w", err)
	}
	return logs, nil
}

// AuditLogger écrit le journal d'audit en arrière-plan.
// Sans ScyllaDB, les entrées vont seulement dans les logs applicatifs.
type AuditLogger struct {
	writer AuditWriter
	log    logrus.FieldLogger
	wg     sync.WaitGroup
}

func NewAuditLogger(session *gocql.Session, log logrus.FieldLogger) *AuditLogger {
	var w AuditWriter
	if session != nil {
		w = scyllaAuditWriter{session: session}
	}
	return NewAuditLoggerWithWriter(w, log)
}

func NewAuditLoggerWithWriter(w AuditWriter, log logrus.FieldLogger) *AuditLogger {
	return &AuditLogger{writer: w, log: log}
}

// NewAuditEntry extrait de la requête tout ce dont l'entrée a besoin.
// Le gin.Context ne doit pas être lu depuis une autre goroutine.
func NewAuditEntry(c *gin.Context, who models.Identity, action, resource, resourceID string) models.AuditLog {
	return models.AuditLog{
		UserID:     who.UserID,
		UserEmail:  who.Email,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.GetHeader("User-Agent"),
		Success:    true,
		RequestID:  c.GetString("request_id"),
	}
}

// WithValues sérialise l'ancien et le nouvel état en JSON
func WithValues(e models.AuditLog, oldValue, newValue any) models.AuditLog {
	if oldValue != nil {
		if b, err := json.Marshal(oldValue); err == nil {
			e.OldValue = string(b)
		}
	}
	if newValue != nil {
		if b, err := json.Marshal(newValue); err == nil {
			e.NewValue = string(b)
		}
	}
	return e
}

func Failed(e models.AuditLog, reason string) models.AuditLog {
	e.Success = false
	e.ErrorMsg = reason
	return e
}

// Record enregistre l'entrée sans bloquer la requête
func (a *AuditLogger) Record(e models.AuditLog) {
	if e.ID == "" {
		e.ID = gocql.TimeUUID().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	fields := logrus.Fields{
		"audit_action": e.Action,
		"resource":     e.Resource,
		"resource_id":  e.ResourceID,
		"user_id":      e.UserID,
		"success":      e.Success,
	}
	if a.writer == nil {
		a.log.WithFields(fields).Info("📝 Audit")
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := a.writer.Write(ctx, e); err != nil {
			a.log.WithError(err).WithFields(fields).Error("❌ Erreur enregistrement log audit")
		}
	}()
}

// List relit le journal trié du plus récent au plus ancien. La limite est
// appliquée par Scylla dans l'ordre des jetons, avant le tri : quand plus
// d'entrées correspondent que la limite, le résultat est un échantillon et
// pas forcément les dernières entrées.
func (a *AuditLogger) List(ctx context.Context, f AuditFilter) ([]models.AuditLog, error) {
	reader, ok := a.writer.(AuditReader)
	if !ok {
		return nil, ErrAuditUnavailable
	}
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}
	if f.Limit > MaxAuditLimit {
		f.Limit = MaxAuditLimit
	}

	logs, err := reader.List(ctx, f)
	if err != nil {
		return nil, err
	}
	// la clé de partition timeuuid ne donne aucun ordre global
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].Timestamp.After(logs[j].Timestamp) })
	return logs, nil
}

// Wait attend la fin des écritures en cours (arrêt du serveur, tests)
func (a *AuditLogger) Wait() {
	a.wg.Wait()
}
