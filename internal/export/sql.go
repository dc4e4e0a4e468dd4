package export

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/RecoveryAshes/WxSpider/internal/models"
)

// 支持的数据库驱动
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSink 写入关系库,每批一个事务
type SQLSink struct {
	db     *sql.DB
	driver string
	table  string
	now    func() time.Time
}

// NewSQLSink 连接数据库并建表
func NewSQLSink(ctx context.Context, driver, dsn, table string) (*SQLSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("export.sql.dsn 不能为空")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sink, err := NewSQLSinkFromDB(db, driver, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := sink.CreateTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return sink, nil
}

// NewSQLSinkFromDB 使用已有连接
func NewSQLSinkFromDB(db *sql.DB, driver, table string) (*SQLSink, error) {
	if driver != DriverMySQL && driver != DriverPostgres {
		return nil, fmt.Errorf("不支持的数据库驱动: %s", driver)
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("非法的表名: %q", table)
	}
	return &SQLSink{db: db, driver: driver, table: table, now: time.Now}, nil
}

func (s *SQLSink) Name() string { return "sql" }

// CreateTable 表不存在时创建
func (s *SQLSink) CreateTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL(s.driver, s.table)); err != nil {
		return fmt.Errorf("创建表 %s 失败: %w", s.table, err)
	}
	return nil
}

// Write 一批记录在同一事务内插入
func (s *SQLSink) Write(ctx context.Context, batch []*models.QuestionRecord) (BatchResult, error) {
	if len(batch) == 0 {
		return BatchResult{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return BatchResult{}, fmt.Errorf("开启事务失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(s.driver, s.table))
	if err != nil {
		tx.Rollback()
		return BatchResult{}, fmt.Errorf("预编译插入语句失败: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	for _, rec := range batch {
		row := ToRow(rec, now)
		if _, err := stmt.ExecContext(ctx, row.Path, row.Content, row.Options, row.Answer, row.Analysis); err != nil {
			tx.Rollback()
			return BatchResult{}, fmt.Errorf("插入失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return BatchResult{}, fmt.Errorf("提交事务失败: %w", err)
	}
	return BatchResult{Written: len(batch)}, nil
}

// Close 关闭连接
func (s *SQLSink) Close() error {
	return s.db.Close()
}

func createTableSQL(driver, table string) string {
	if driver == DriverPostgres {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id SERIAL PRIMARY KEY,
    path TEXT,
    content TEXT,
    options TEXT,
    answer VARCHAR(50),
    analysis TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`, table)
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id INT AUTO_INCREMENT PRIMARY KEY,
    path TEXT COMMENT '分类路径,用->连接',
    content TEXT COMMENT '题目内容(保留img标签)',
    options TEXT COMMENT '选项,JSON格式',
    answer VARCHAR(50) COMMENT '答案',
    analysis TEXT COMMENT '答案解析(保留img标签)',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`, table)
}

func insertSQL(driver, table string) string {
	if driver == DriverPostgres {
		return fmt.Sprintf("INSERT INTO %s (path, content, options, answer, analysis) VALUES ($1, $2, $3, $4, $5)", table)
	}
	return fmt.Sprintf("INSERT INTO %s (path, content, options, answer, analysis) VALUES (?, ?, ?, ?, ?)", table)
}
