package database

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"cedra_storefront/internal/config"
)

const createAuditTable = `CREATE TABLE IF NOT EXISTS audit_logs (
	id timeuuid PRIMARY KEY,
	user_id bigint,
	user_email text,
	action text,
	resource text,
	resource_id text,
	old_value text,
	new_value text,
	ip_address text,
	user_agent text,
	success boolean,
	error_msg text,
	timestamp timestamp,
	request_id text
)`

// connectScylla ouvre la session du keyspace d'audit et crée la table si besoin
func connectScylla(cfg config.Config) (*gocql.Session, error) {
	cluster := gocql.NewCluster(cfg.ScyllaHosts...)
	cluster.Keyspace = cfg.ScyllaAuditKeyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.NumConns = 4
	cluster.ReconnectInterval = time.Second
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())

	if cfg.ScyllaAuditRole != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.ScyllaAuditRole,
			Password: cfg.ScyllaAuditPassword,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("session scylla %s: %w", cfg.ScyllaAuditKeyspace, err)
	}

	if err := session.Query(createAuditTable).Exec(); err != nil {
		session.Close()
		return nil, fmt.Errorf("création table audit_logs: %w", err)
	}
	return session, nil
}
