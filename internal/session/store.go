package session

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"unigo-console/internal/db"
)

// TokenStore persists the bearer token between runs. Load returns an
// empty token when nothing is stored under key.
type TokenStore interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, token string) error
	Clear(ctx context.Context, key string) error
}

type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[key], nil
}

func (s *MemoryStore) Save(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = token
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}

// RedisStore keeps tokens under "unigo:session:<key>".
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func redisKey(key string) string { return "unigo:session:" + key }

func (s *RedisStore) Load(ctx context.Context, key string) (string, error) {
	token, err := s.rdb.Get(ctx, redisKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "redis get session")
	}
	return token, nil
}

func (s *RedisStore) Save(ctx context.Context, key, token string) error {
	return errors.Wrap(s.rdb.Set(ctx, redisKey(key), token, 0).Err(), "redis set session")
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	return errors.Wrap(s.rdb.Del(ctx, redisKey(key)).Err(), "redis del session")
}

// PostgresStore keeps tokens in the console_sessions table created by
// db.AutoMigrate.
type PostgresStore struct {
	conn *sql.DB
}

func NewPostgresStore(database *db.Database) *PostgresStore {
	return &PostgresStore{conn: database.Conn}
}

func (s *PostgresStore) Load(ctx context.Context, key string) (string, error) {
	var token string
	err := s.conn.QueryRowContext(ctx,
		"SELECT token FROM console_sessions WHERE key = $1", key).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "select session")
	}
	return token, nil
}

func (s *PostgresStore) Save(ctx context.Context, key, token string) error {
	query := `
		INSERT INTO console_sessions (key, token, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET token = EXCLUDED.token, updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.conn.ExecContext(ctx, query, key, token)
	return errors.Wrap(err, "upsert session")
}

func (s *PostgresStore) Clear(ctx context.Context, key string) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM console_sessions WHERE key = $1", key)
	return errors.Wrap(err, "delete session")
}
