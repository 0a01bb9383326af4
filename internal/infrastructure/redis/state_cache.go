package redis

import (
	"auction-engine/internal/domain"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

const snapshotTTL = 24 * time.Hour

// setSnapshotScript only overwrites the hash when the incoming version is not
// older than the cached one, so late writers cannot roll the summary back.
var setSnapshotScript = redis.NewScript(`
	local current = redis.call('HGET', KEYS[1], 'version')
	if current and tonumber(current) > tonumber(ARGV[1]) then
		return 0
	end
	redis.call('HSET', KEYS[1],
		'version', ARGV[1],
		'status', ARGV[2],
		'current_top_bid', ARGV[3],
		'top_bidder_id', ARGV[4],
		'minimum_bid', ARGV[5],
		'bid_count', ARGV[6],
		'end_time', ARGV[7])
	redis.call('EXPIRE', KEYS[1], ARGV[8])
	return 1
`)

type RedisStateCache struct {
	client *redis.Client
}

func NewRedisStateCache(client *redis.Client) *RedisStateCache {
	return &RedisStateCache{client: client}
}

func snapshotKey(auctionID string) string {
	return fmt.Sprintf("auction:%s:snapshot", auctionID)
}

func (r *RedisStateCache) SetSnapshot(ctx context.Context, s *domain.AuctionSnapshot) error {
	return setSnapshotScript.Run(ctx, r.client, []string{snapshotKey(s.AuctionID)},
		s.Version,
		int(s.Status),
		s.CurrentTopBid.String(),
		s.TopBidderID,
		s.MinimumBid.String(),
		s.BidCount,
		s.EndTime.UTC().Format(time.RFC3339Nano),
		int(snapshotTTL.Seconds()),
	).Err()
}

func (r *RedisStateCache) GetSnapshot(ctx context.Context, auctionID string) (*domain.AuctionSnapshot, error) {
	fields, err := r.client.HGetAll(ctx, snapshotKey(auctionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	s := &domain.AuctionSnapshot{AuctionID: auctionID, TopBidderID: fields["top_bidder_id"]}

	status, err := strconv.Atoi(fields["status"])
	if err != nil {
		return nil, fmt.Errorf("parse cached status: %w", err)
	}
	s.Status = domain.AuctionStatus(status)

	if s.Version, err = strconv.ParseInt(fields["version"], 10, 64); err != nil {
		return nil, fmt.Errorf("parse cached version: %w", err)
	}
	if s.BidCount, err = strconv.Atoi(fields["bid_count"]); err != nil {
		return nil, fmt.Errorf("parse cached bid count: %w", err)
	}
	if s.CurrentTopBid, err = decimal.NewFromString(fields["current_top_bid"]); err != nil {
		return nil, fmt.Errorf("parse cached top bid: %w", err)
	}
	if s.MinimumBid, err = decimal.NewFromString(fields["minimum_bid"]); err != nil {
		return nil, fmt.Errorf("parse cached minimum bid: %w", err)
	}
	if s.EndTime, err = time.Parse(time.RFC3339Nano, fields["end_time"]); err != nil {
		return nil, fmt.Errorf("parse cached end time: %w", err)
	}

	return s, nil
}
