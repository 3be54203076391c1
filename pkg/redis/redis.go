package redis

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

type IRedis interface {
	GetResult(ctx context.Context, key string) ([]byte, error)
	SetResult(ctx context.Context, key string, payload []byte, expiration time.Duration) error
	DeleteResult(ctx context.Context, key string) error
	Close() error
}

type redisClient struct {
	client *redis.Client
	log    *logrus.Logger
}

func New(log *logrus.Logger) IRedis {
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
	}

	log.WithField("addr", addr).Info("Connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Error("Failed to connect to Redis, result cache will miss until it is reachable")
	} else {
		log.Info("Successfully connected to Redis")
	}

	return &redisClient{client: client, log: log}
}

func (r *redisClient) GetResult(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.log.WithField("key", key).Debug("Cached result not found")
		return nil, ErrCacheMiss
	} else if err != nil {
		r.log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Error("Error getting cached result")
		return nil, err
	}
	return val, nil
}

func (r *redisClient) SetResult(ctx context.Context, key string, payload []byte, expiration time.Duration) error {
	if err := r.client.Set(ctx, key, payload, expiration).Err(); err != nil {
		r.log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Error("Error caching result")
		return err
	}
	r.log.WithFields(logrus.Fields{"key": key, "ttl": expiration}).Debug("Cached result")
	return nil
}

func (r *redisClient) DeleteResult(ctx context.Context, key string) error {
	removed, err := r.client.Del(ctx, key).Result()
	if err != nil {
		r.log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Error("Error deleting cached result")
		return err
	}
	if removed == 0 {
		r.log.WithField("key", key).Debug("Cached result already gone")
	}
	return nil
}

func (r *redisClient) Close() error {
	return r.client.Close()
}
