package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const serviceFieldPrefix = "svc:"

// applyChargeScript performs the whole Apply contract inside Redis so
// concurrent writers from several processes cannot lose increments.
//
// KEYS[1] period hash; ARGV: amount, service field, daily limit, monthly limit, timestamp.
var applyChargeScript = goredis.NewScript(`
local key = KEYS[1]
if redis.call('exists', key) == 0 then
  redis.call('hset', key, 'limit', ARGV[3], 'monthly_limit', ARGV[4], 'total', 0, 'ops', 0, 'exceeded', 0, 'created_at', ARGV[5])
end
redis.call('hincrby', key, ARGV[2], ARGV[1])
local total = redis.call('hincrby', key, 'total', ARGV[1])
redis.call('hincrby', key, 'ops', 1)
redis.call('hset', key, 'updated_at', ARGV[5])
local limit = tonumber(redis.call('hget', key, 'limit'))
if redis.call('hget', key, 'exceeded') == '0' and total >= limit then
  redis.call('hset', key, 'exceeded', 1, 'exceeded_at', ARGV[5])
end
return redis.call('hgetall', key)
`)

// RedisStore keeps periods in Redis hashes, one per day.
type RedisStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewRedisStore wraps client. Keys are namespaced under prefix.
func NewRedisStore(client goredis.UniversalClient, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "viralforge:budget"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) periodKey(day string) string {
	return fmt.Sprintf("%s:period:%s", r.prefix, day)
}

func (r *RedisStore) counterKey(day string) string {
	return fmt.Sprintf("%s:counters:%s", r.prefix, day)
}

func (r *RedisStore) Period(ctx context.Context, day string) (*Period, error) {
	fields, err := r.client.HGetAll(ctx, r.periodKey(day)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	p, err := decodePeriod(day, fields)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RedisStore) PeriodsBetween(ctx context.Context, fromDay, toDay string) ([]Period, error) {
	days, err := DaysBetween(fromDay, toDay)
	if err != nil {
		return nil, err
	}
	var out []Period
	for _, day := range days {
		p, err := r.Period(ctx, day)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *RedisStore) Apply(ctx context.Context, charge Charge) (Period, error) {
	raw, err := applyChargeScript.Run(ctx, r.client,
		[]string{r.periodKey(charge.Day)},
		int64(charge.Amount),
		serviceFieldPrefix+charge.Service,
		int64(charge.DailyLimit),
		int64(charge.MonthlyLimit),
		charge.At.UTC().Format(time.RFC3339Nano),
	).StringSlice()
	if err != nil {
		return Period{}, fmt.Errorf("apply charge: %w", err)
	}
	if len(raw)%2 != 0 {
		return Period{}, errors.New("apply charge: malformed script reply")
	}
	fields := make(map[string]string, len(raw)/2)
	for i := 0; i < len(raw); i += 2 {
		fields[raw[i]] = raw[i+1]
	}
	return decodePeriod(charge.Day, fields)
}

func (r *RedisStore) IncrementCounter(ctx context.Context, day, name string, delta int64) error {
	return r.client.HIncrBy(ctx, r.counterKey(day), name, delta).Err()
}

func (r *RedisStore) Counters(ctx context.Context, day string) (map[string]int64, error) {
	fields, err := r.client.HGetAll(ctx, r.counterKey(day)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(fields))
	for name, value := range fields {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", name, err)
		}
		out[name] = n
	}
	return out, nil
}

func decodePeriod(day string, fields map[string]string) (Period, error) {
	p := Period{Day: day, Breakdown: make(map[string]USD)}
	for key, value := range fields {
		switch {
		case strings.HasPrefix(key, serviceFieldPrefix):
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Period{}, fmt.Errorf("decode %s: %w", key, err)
			}
			p.Breakdown[strings.TrimPrefix(key, serviceFieldPrefix)] = USD(n)
		case key == "limit", key == "monthly_limit", key == "total", key == "ops":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Period{}, fmt.Errorf("decode %s: %w", key, err)
			}
			switch key {
			case "limit":
				p.Limit = USD(n)
			case "monthly_limit":
				p.MonthlyLimit = USD(n)
			case "total":
				p.Total = USD(n)
			case "ops":
				p.Operations = n
			}
		case key == "exceeded":
			p.Exceeded = value == "1"
		case key == "exceeded_at", key == "created_at", key == "updated_at":
			ts, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return Period{}, fmt.Errorf("decode %s: %w", key, err)
			}
			switch key {
			case "exceeded_at":
				p.ExceededAt = &ts
			case "created_at":
				p.CreatedAt = ts
			case "updated_at":
				p.UpdatedAt = ts
			}
		}
	}
	return p, nil
}
