// Package sessions хранит авторизованную сессию маркетплейса (непрозрачный
// блоб кук). Сессия снимается вручную вне сервиса и загружается через API;
// скрейпер её только читает и инвалидирует при редиректе на логин.
package sessions

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const sessionKey = "session:amazon"

// TTL с запасом: протухшую сессию апстрим и так отвергнет, а ключ
// не должен жить вечно после того, как пользователь забыл про сервис.
const sessionTTL = 90 * 24 * time.Hour

type Store struct {
	c *redis.Client
}

func New(addr string) *Store {
	return &Store{
		c: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (s *Store) Get(ctx context.Context) (string, bool, error) {
	val, err := s.c.Get(ctx, sessionKey).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "session get")
	}
	return val, true, nil
}

func (s *Store) Put(ctx context.Context, blob string) error {
	if blob == "" {
		return errors.New("empty session blob")
	}
	if err := s.c.Set(ctx, sessionKey, blob, sessionTTL).Err(); err != nil {
		return errors.Wrap(err, "session put")
	}
	return nil
}

// Invalidate удаляет сессию. Повторный вызов безвреден.
func (s *Store) Invalidate(ctx context.Context) error {
	if err := s.c.Del(ctx, sessionKey).Err(); err != nil {
		return errors.Wrap(err, "session invalidate")
	}
	return nil
}
