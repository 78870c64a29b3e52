package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// readPoolSize максимум одновременных соединений
// WAL допускает много читателей при одном писателе; выборки партнера
// и status-поллинг - преобладающая нагрузка relay, поэтому пул шире
// одного соединения, а конкурирующих писателей разводит busy_timeout
const readPoolSize = 4

// connPragmas применяются к каждому соединению пула через DSN:
// foreign_keys и busy_timeout действуют на соединение, а не на базу
// foreign_keys несущая: entries.author_key -> users.public_key
var connPragmas = []string{
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(NORMAL)",
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(10000)",
}

// Storage represents SQLite storage implementation
type Storage struct {
	db *sql.DB
}

// New creates a new SQLite storage instance and brings the schema up
// to date. dbPath is the path to the SQLite database file;
// use ":memory:" for in-memory database (useful for testing)
// Ошибка миграции фатальна: сервер не должен принять ни одного
// запроса поверх схемы неожиданной формы
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := open(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return s, nil
}

// dsn собирает строку подключения с попрагмной настройкой соединений
func dsn(dbPath string) string {
	return "file:" + dbPath + "?" + strings.Join(connPragmas, "&")
}

// open открывает и проверяет соединение с БД
func open(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == ":memory:" {
		// У каждого соединения с :memory: своя база - пул обязан
		// остаться на одном соединении, иначе тесты видят пустую схему
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(readPoolSize)
		db.SetMaxIdleConns(readPoolSize)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// migrate выполняет goose миграции из embedded FS
func (s *Storage) migrate(ctx context.Context) error {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	goose.SetBaseFS(embedMigrations)

	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB returns the underlying database connection for testing purposes
func (s *Storage) DB() *sql.DB {
	return s.db
}
