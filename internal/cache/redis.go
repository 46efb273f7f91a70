package cache

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/greenroute/greenroute_core/internal/models"
	"github.com/redis/go-redis/v9"
)

var (
	client     *redis.Client
	clientOnce sync.Once
	clientErr  error
)

// Config holds Redis configuration
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
	MutexTTL time.Duration
}

// LoadConfigFromEnv loads Redis configuration from environment variables
func LoadConfigFromEnv() *Config {
	port, _ := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, _ := time.ParseDuration(getEnv("CACHE_TTL", "2m"))
	mutexTTL, _ := time.ParseDuration(getEnv("CACHE_MUTEX_TTL", "5s"))

	return &Config{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     port,
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       db,
		TTL:      ttl,
		MutexTTL: mutexTTL,
	}
}

// GetClient returns the global Redis client (singleton pattern)
func GetClient() (*redis.Client, error) {
	clientOnce.Do(func() {
		config := LoadConfigFromEnv()

		opts := &redis.Options{
			Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
			Password:     config.Password,
			DB:           config.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		}

		if getEnv("REDIS_TLS_ENABLED", "false") == "true" {
			opts.TLSConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}

		client = redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			clientErr = fmt.Errorf("failed to connect to Redis: %w", err)
			return
		}
	})

	return client, clientErr
}

// Close closes the Redis client
func Close() {
	if client != nil {
		client.Close()
	}
}

// PlanKey generates a cache key for a planning request. Departure forecasts
// go stale quickly, so plan entries carry a short TTL.
func PlanKey(origin, destination models.LatLon, month string, wTime, wGreen float64, maxResults int) string {
	data := fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s,%.3f,%.3f,%d",
		origin.Lat, origin.Lon, destination.Lat, destination.Lon, month, wTime, wGreen, maxResults)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("plan:%x", hash[:8])
}

// LockKey generates a mutex lock key
func LockKey(planKey string) string {
	return fmt.Sprintf("lock:%s", planKey)
}

// RebuildLockKey guards the per-month DGVI rebuild so two admin runs for the
// same month cannot interleave.
func RebuildLockKey(month string) string {
	return fmt.Sprintf("lock:dgvi-rebuild:%s", month)
}

// GetPlans retrieves cached route plans
func GetPlans(ctx context.Context, key string) ([]models.RoutePlan, error) {
	client, err := GetClient()
	if err != nil {
		return nil, err
	}

	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, err
	}

	var plans []models.RoutePlan
	if err := json.Unmarshal(data, &plans); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached plans: %w", err)
	}

	return plans, nil
}

// SetPlans caches route plans
func SetPlans(ctx context.Context, key string, plans []models.RoutePlan, ttl time.Duration) error {
	client, err := GetClient()
	if err != nil {
		return err
	}

	data, err := json.Marshal(plans)
	if err != nil {
		return fmt.Errorf("failed to marshal plans: %w", err)
	}

	return client.Set(ctx, key, data, ttl).Err()
}

// AcquireLock attempts to acquire a distributed lock
// Returns true if lock was acquired, false if already locked
func AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	client, err := GetClient()
	if err != nil {
		return false, err
	}

	ok, err := client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// ReleaseLock releases a distributed lock
func ReleaseLock(ctx context.Context, key string) error {
	client, err := GetClient()
	if err != nil {
		return err
	}

	return client.Del(ctx, key).Err()
}

// WaitForLock waits for a lock to be released and then retrieves the result
// This implements the "wait for result" pattern to avoid thundering herd
func WaitForLock(ctx context.Context, planKey string, maxWait time.Duration) ([]models.RoutePlan, error) {
	client, err := GetClient()
	if err != nil {
		return nil, err
	}

	lockKey := LockKey(planKey)
	deadline := time.Now().Add(maxWait)

	for time.Now().Before(deadline) {
		exists, err := client.Exists(ctx, lockKey).Result()
		if err != nil {
			return nil, err
		}

		if exists == 0 {
			return GetPlans(ctx, planKey)
		}

		time.Sleep(100 * time.Millisecond)
	}

	return nil, fmt.Errorf("timeout waiting for lock")
}

// HealthCheck performs a health check on the Redis connection
func HealthCheck(ctx context.Context) error {
	client, err := GetClient()
	if err != nil {
		return fmt.Errorf("Redis client not initialized: %w", err)
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis ping failed: %w", err)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
