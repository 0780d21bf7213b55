package xsqlsink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres 驱动

	"github.com/omeyang/xlogpipe/pkg/observability/xentry"
	"github.com/omeyang/xlogpipe/pkg/pipeline/xbatch"
)

const (
	// DefaultTable 默认表名
	DefaultTable = "Logs"

	// DefaultDriver 默认驱动名
	DefaultDriver = "postgres"
)

var (
	// ErrNilDB 未提供数据库连接
	ErrNilDB = errors.New("xsqlsink: nil db")

	// ErrInvalidTable 表名不是合法标识符
	ErrInvalidTable = errors.New("xsqlsink: invalid table name")
)

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type config struct {
	table       string
	createTable bool
	batch       []xbatch.Option
}

// Option 配置选项
type Option func(*config)

// WithTable 设置表名，允许 schema.table 形式
func WithTable(name string) Option {
	return func(c *config) { c.table = name }
}

// WithCreateTable 创建 sink 时确保表存在
func WithCreateTable(enable bool) Option {
	return func(c *config) { c.createTable = enable }
}

// WithBatch 透传批量层选项
func WithBatch(opts ...xbatch.Option) Option {
	return func(c *config) { c.batch = append(c.batch, opts...) }
}

// row 一行日志记录
type row struct {
	Timestamp  time.Time      `db:"timestamp"`
	Level      string         `db:"level"`
	Category   sql.NullString `db:"category"`
	Message    string         `db:"message"`
	Exception  sql.NullString `db:"exception"`
	Properties sql.NullString `db:"properties"`
}

func toRow(e *xentry.Entry) row {
	props, ok := e.PropertiesJSON()
	exception := e.ErrorText()
	return row{
		Timestamp:  e.Timestamp,
		Level:      e.Level.String(),
		Category:   sql.NullString{String: e.Category, Valid: e.Category != ""},
		Message:    e.Message,
		Exception:  sql.NullString{String: exception, Valid: exception != ""},
		Properties: sql.NullString{String: props, Valid: ok},
	}
}

// Sender 事务批量插入
type Sender struct {
	db     *sqlx.DB
	table  string
	insert string
}

var _ xbatch.Sender = (*Sender)(nil)

// NewSender 创建 Sender
func NewSender(db *sqlx.DB, table string) (*Sender, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	if table == "" {
		table = DefaultTable
	}
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &Sender{
		db:    db,
		table: table,
		insert: "INSERT INTO " + table + " (Timestamp, Level, Category, Message, Exception, Properties) " +
			"VALUES (:timestamp, :level, :category, :message, :exception, :properties)",
	}, nil
}

// Send 在一个事务中插入整个批次
func (s *Sender) Send(ctx context.Context, batch []*xentry.Entry) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("xsqlsink: begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("xsqlsink: rollback: %w", rbErr))
			}
		}
	}()

	stmt, err := tx.PrepareNamedContext(ctx, s.insert)
	if err != nil {
		return fmt.Errorf("xsqlsink: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err = stmt.ExecContext(ctx, toRow(e)); err != nil {
			return fmt.Errorf("xsqlsink: insert into %s: %w", s.table, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("xsqlsink: commit: %w", err)
	}
	return nil
}

// EnsureTable 表不存在时创建（PostgreSQL 方言）
func (s *Sender) EnsureTable(ctx context.Context) error {
	ddl := "CREATE TABLE IF NOT EXISTS " + s.table + ` (
	Id BIGSERIAL PRIMARY KEY,
	Timestamp TIMESTAMPTZ NOT NULL,
	Level VARCHAR(50) NOT NULL,
	Category VARCHAR(255) NULL,
	Message TEXT NOT NULL,
	Exception TEXT NULL,
	Properties TEXT NULL
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("xsqlsink: create table %s: %w", s.table, err)
	}
	return nil
}

// Close 关闭数据库连接，只在 Sink 拥有连接时被调用
func (s *Sender) Close() error {
	return s.db.Close()
}

// New 使用已有连接创建 sink，默认不关闭 db
func New(ctx context.Context, db *sqlx.DB, opts ...Option) (*xbatch.Sink, error) {
	return newSink(ctx, db, false, opts)
}

// Open 按驱动名和 DSN 连接数据库并创建 sink，sink 关闭时关闭连接
func Open(ctx context.Context, driverName, dsn string, opts ...Option) (*xbatch.Sink, error) {
	if driverName == "" {
		driverName = DefaultDriver
	}
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("xsqlsink: connect %s: %w", driverName, err)
	}
	sink, err := newSink(ctx, db, true, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func newSink(ctx context.Context, db *sqlx.DB, owned bool, opts []Option) (*xbatch.Sink, error) {
	cfg := config{table: DefaultTable}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	sender, err := NewSender(db, cfg.table)
	if err != nil {
		return nil, err
	}
	if cfg.createTable {
		if err := sender.EnsureTable(ctx); err != nil {
			return nil, err
		}
	}
	batch := append([]xbatch.Option{xbatch.WithOwnership(owned)}, cfg.batch...)
	return xbatch.New("sql:"+sender.table, sender, batch...)
}
