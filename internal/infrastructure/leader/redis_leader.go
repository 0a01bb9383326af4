package leader

import (
	"auction-engine/pkg/logger"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var renewScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisLeaderElection holds a TTL lease on a single key. The holder renews
// it every ttl/3 until it loses the key or releases it.
type RedisLeaderElection struct {
	client     *redis.Client
	key        string
	instanceID string
	ttl        time.Duration
	log        logger.Logger

	mu        sync.Mutex
	stopRenew context.CancelFunc
}

func NewRedisLeaderElection(client *redis.Client, key, instanceID string, ttl time.Duration, log logger.Logger) *RedisLeaderElection {
	return &RedisLeaderElection{
		client:     client,
		key:        key,
		instanceID: instanceID,
		ttl:        ttl,
		log:        log,
	}
}

func (r *RedisLeaderElection) BecomeLeader(ctx context.Context) (bool, error) {
	acquired, err := r.client.SetNX(ctx, r.key, r.instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}

	if acquired {
		r.log.Info("Acquired leadership", "instance_id", r.instanceID, "key", r.key)
		r.startRenewal()
	}
	return acquired, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context) (bool, error) {
	currentLeader, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return currentLeader == r.instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context) error {
	r.mu.Lock()
	if r.stopRenew != nil {
		r.stopRenew()
		r.stopRenew = nil
	}
	r.mu.Unlock()

	return releaseScript.Run(ctx, r.client, []string{r.key}, r.instanceID).Err()
}

// RunElection campaigns every interval until ctx is done, then releases the
// lease if this instance holds it.
func (r *RedisLeaderElection) RunElection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.BecomeLeader(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("Leader election failed", "instance_id", r.instanceID, "error", err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.ReleaseLeadership(releaseCtx); err != nil {
				r.log.Warn("Failed to release leadership", "instance_id", r.instanceID, "error", err)
			}
			cancel()
			return
		}
	}
}

func (r *RedisLeaderElection) startRenewal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopRenew != nil {
		r.stopRenew()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.stopRenew = cancel
	go r.maintainLeadership(ctx)
}

func (r *RedisLeaderElection) maintainLeadership(ctx context.Context) {
	ticker := time.NewTicker(r.ttl / 3) // Refresh at 1/3 of TTL
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		renewCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		renewed, err := renewScript.Run(renewCtx, r.client, []string{r.key}, r.instanceID, r.ttl.Milliseconds()).Int64()
		cancel()

		if err != nil || renewed == 0 {
			r.log.Warn("Lost leadership", "instance_id", r.instanceID, "error", err)
			return
		}
	}
}
