package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// Dialect selects the SQL flavour the repositories speak.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// ParseDialect maps DB_DRIVER values onto a Dialect.  An empty value
// selects MySQL.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mysql":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return "", fmt.Errorf("unsupported DB_DRIVER %q", s)
}

// DriverName is the database/sql driver registered for d.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "mysql"
}

// Rebind rewrites '?' placeholders into '$n' for Postgres.  Queries in
// this code base never contain a literal '?' inside string constants.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Conn describes how to reach the database.
type Conn struct {
	Dialect Dialect
	User    string
	Pass    string
	Host    string
	Port    string
	Name    string
}

// DSN returns the driver-specific data source name.
func (c Conn) DSN() string {
	if c.Dialect == Postgres {
		return c.url("postgres")
	}
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Pass
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, c.Port)
	cfg.DBName = c.Name
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4", "time_zone": "'+00:00'"}
	return cfg.FormatDSN()
}

// MigrationURL returns the URL golang-migrate expects for this connection.
func (c Conn) MigrationURL() string {
	if c.Dialect == Postgres {
		return c.url("pgx5")
	}
	return "mysql://" + c.DSN() + "&multiStatements=true"
}

func (c Conn) url(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	if c.Pass != "" {
		u.User = url.UserPassword(c.User, c.Pass)
	} else {
		u.User = url.User(c.User)
	}
	return u.String()
}

// Open connects to the configured database and verifies the connection.
func Open(c Conn) (*sql.DB, error) {
	db, err := sql.Open(c.Dialect.DriverName(), c.DSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
