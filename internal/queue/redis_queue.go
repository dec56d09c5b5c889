package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"vaccine-tracker/internal/config"
	"vaccine-tracker/internal/models"
)

// ErrDuplicateJob is returned by Add when a job with the same id already exists.
var ErrDuplicateJob = errors.New("job id already exists")

// RedisQueue is a durable delayed-job queue. Each job is a hash; its state is
// tracked by membership in the wait list or one of the delayed, active,
// completed and failed sorted sets.
type RedisQueue struct {
	client        redis.UniversalClient
	prefix        string
	visibilityTTL time.Duration
	maxAttempts   int
	keepCompleted int
	keepFailed    int
}

// AddOptions controls how a job is enqueued.
type AddOptions struct {
	// JobID doubles as the idempotency key. Empty allocates a sequential id.
	JobID       string
	Delay       time.Duration
	MaxAttempts int
}

// NewRedisQueue builds a queue client from config.
func NewRedisQueue(cfg config.Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisQueueWithClient(client, cfg)
}

// NewRedisQueueWithClient builds a queue over an existing client.
func NewRedisQueueWithClient(client redis.UniversalClient, cfg config.Config) *RedisQueue {
	name := cfg.QueueName
	if name == "" {
		name = "default"
	}
	visibility := cfg.VisibilityTimeout
	if visibility == 0 {
		visibility = 30 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RedisQueue{
		client:        client,
		prefix:        fmt.Sprintf("queue:%s:", name),
		visibilityTTL: visibility,
		maxAttempts:   maxAttempts,
		keepCompleted: retention(cfg.KeepCompleted),
		keepFailed:    retention(cfg.KeepFailed),
	}
}

// retention maps an unset limit to -1, which the scripts read as "keep everything".
func retention(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

// Close releases the underlying connection pool.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Ping checks connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) jobKey(id string) string { return q.prefix + "job:" + id }
func (q *RedisQueue) waitKey() string         { return q.prefix + "wait" }
func (q *RedisQueue) delayedKey() string      { return q.prefix + "delayed" }
func (q *RedisQueue) activeKey() string       { return q.prefix + "active" }
func (q *RedisQueue) completedKey() string    { return q.prefix + "completed" }
func (q *RedisQueue) failedKey() string       { return q.prefix + "failed" }
func (q *RedisQueue) jobPrefix() string       { return q.prefix + "job:" }

func (q *RedisQueue) stateKey(state models.JobState) string {
	switch state {
	case models.StateWaiting:
		return q.waitKey()
	case models.StateDelayed:
		return q.delayedKey()
	case models.StateActive:
		return q.activeKey()
	case models.StateCompleted:
		return q.completedKey()
	default:
		return q.failedKey()
	}
}

// Add inserts a job, delayed when opts.Delay is positive. Insertion is atomic
// and keyed by opts.JobID: a second Add with the same id returns
// ErrDuplicateJob and leaves the first job untouched.
func (q *RedisQueue) Add(ctx context.Context, jobType string, data any, opts AddOptions) (models.Job, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal job data: %w", err)
	}
	if opts.JobID == "" {
		id, err := q.client.Incr(ctx, q.prefix+"id").Result()
		if err != nil {
			return models.Job{}, fmt.Errorf("allocate job id: %w", err)
		}
		opts.JobID = strconv.FormatInt(id, 10)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = q.maxAttempts
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}

	now := time.Now()
	delayMs := opts.Delay.Milliseconds()
	added, err := addScript.Run(ctx, q.client,
		[]string{q.jobKey(opts.JobID), q.delayedKey(), q.waitKey()},
		opts.JobID, jobType, string(raw), delayMs, opts.MaxAttempts, now.UnixMilli(), now.UnixMilli()+delayMs,
	).Int()
	if err != nil {
		return models.Job{}, fmt.Errorf("add job: %w", err)
	}
	if added == 0 {
		return models.Job{}, ErrDuplicateJob
	}

	state := models.StateWaiting
	if delayMs > 0 {
		state = models.StateDelayed
	}
	return models.Job{
		ID:          opts.JobID,
		Type:        jobType,
		Data:        raw,
		State:       state,
		DelayMs:     delayMs,
		MaxAttempts: opts.MaxAttempts,
		CreatedAt:   time.UnixMilli(now.UnixMilli()),
	}, nil
}

// GetJob returns the job stored under id, or nil when it does not exist.
func (q *RedisQueue) GetJob(ctx context.Context, id string) (*models.Job, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	job, err := decodeJob(fields)
	if err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// Scan lists jobs in the given states. Offset and limit apply to the combined
// listing; a non-positive limit means no limit.
func (q *RedisQueue) Scan(ctx context.Context, states []models.JobState, offset, limit int) ([]models.Job, error) {
	if len(states) == 0 {
		states = models.AllStates
	}

	// MULTI so the id lists come from one point in time.
	pipe := q.client.TxPipeline()
	cmds := make([]*redis.StringSliceCmd, 0, len(states))
	for _, s := range states {
		if s == models.StateWaiting {
			cmds = append(cmds, pipe.LRange(ctx, q.waitKey(), 0, -1))
		} else {
			cmds = append(cmds, pipe.ZRange(ctx, q.stateKey(s), 0, -1))
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("scan job ids: %w", err)
	}

	var ids []string
	for _, c := range cmds {
		ids = append(ids, c.Val()...)
	}
	if offset > 0 {
		if offset >= len(ids) {
			return nil, nil
		}
		ids = ids[offset:]
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe = q.client.Pipeline()
	hashes := make([]*redis.MapStringStringCmd, 0, len(ids))
	for _, id := range ids {
		hashes = append(hashes, pipe.HGetAll(ctx, q.jobKey(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}

	jobs := make([]models.Job, 0, len(ids))
	for _, h := range hashes {
		fields := h.Val()
		if len(fields) == 0 {
			// removed between the two round trips
			continue
		}
		job, err := decodeJob(fields)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Remove deletes a job whatever its state.
func (q *RedisQueue) Remove(ctx context.Context, id string) error {
	keys := []string{q.waitKey(), q.delayedKey(), q.activeKey(), q.completedKey(), q.failedKey(), q.jobKey(id)}
	if err := removeScript.Run(ctx, q.client, keys, id).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("remove job %s: %w", id, err)
	}
	return nil
}

// PromoteDelayed moves due delayed jobs onto the wait list. It returns how many were promoted.
func (q *RedisQueue) PromoteDelayed(ctx context.Context, now time.Time, limit int64) (int, error) {
	n, err := promoteScript.Run(ctx, q.client,
		[]string{q.delayedKey(), q.waitKey()},
		now.UnixMilli(), limit, q.jobPrefix(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promote delayed: %w", err)
	}
	return n, nil
}

// DequeueWithLease pops the next waiting job and marks it active until the
// visibility timeout elapses. It returns nil when nothing is waiting.
func (q *RedisQueue) DequeueWithLease(ctx context.Context) (*models.Job, error) {
	now := time.Now()
	res, err := dequeueScript.Run(ctx, q.client,
		[]string{q.waitKey(), q.activeKey()},
		now.Add(q.visibilityTTL).UnixMilli(), now.UnixMilli(), q.jobPrefix(),
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	jobID, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected type from dequeue script: %T", res)
	}
	return q.GetJob(ctx, jobID)
}

// ExtendLease pushes the visibility deadline forward for an active job.
func (q *RedisQueue) ExtendLease(ctx context.Context, jobID string, extension time.Duration) error {
	return q.client.ZAddXX(ctx, q.activeKey(), redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: jobID,
	}).Err()
}

// Complete marks an active job completed and trims completed history. It
// reports false when the job was no longer active (lease lost or removed).
func (q *RedisQueue) Complete(ctx context.Context, jobID string) (bool, error) {
	n, err := completeScript.Run(ctx, q.client,
		[]string{q.activeKey(), q.completedKey(), q.jobKey(jobID)},
		jobID, time.Now().UnixMilli(), q.keepCompleted, q.jobPrefix(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return n == 1, nil
}

// Retry records the failure and re-delays an active job until retryAt.
func (q *RedisQueue) Retry(ctx context.Context, jobID string, reason string, retryAt time.Time) (bool, error) {
	return q.fail(ctx, jobID, reason, retryAt.UnixMilli())
}

// Fail marks an active job permanently failed and trims failed history.
func (q *RedisQueue) Fail(ctx context.Context, jobID string, reason string) (bool, error) {
	return q.fail(ctx, jobID, reason, 0)
}

func (q *RedisQueue) fail(ctx context.Context, jobID, reason string, retryAtMs int64) (bool, error) {
	n, err := failScript.Run(ctx, q.client,
		[]string{q.activeKey(), q.delayedKey(), q.failedKey(), q.jobKey(jobID)},
		jobID, time.Now().UnixMilli(), reason, retryAtMs, q.keepFailed, q.jobPrefix(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", jobID, err)
	}
	return n > 0, nil
}

// RequeueExpired reclaims active jobs whose lease timed out, returning them to
// the wait list.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	res, err := requeueScript.Run(ctx, q.client,
		[]string{q.activeKey(), q.waitKey()},
		now.UnixMilli(), limit, q.jobPrefix(),
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("requeue expired: %w", err)
	}
	return res, nil
}

// Counts returns the number of jobs per state.
func (q *RedisQueue) Counts(ctx context.Context) (map[models.JobState]int64, error) {
	pipe := q.client.Pipeline()
	cmds := make(map[models.JobState]*redis.IntCmd, len(models.AllStates))
	for _, s := range models.AllStates {
		if s == models.StateWaiting {
			cmds[s] = pipe.LLen(ctx, q.waitKey())
		} else {
			cmds[s] = pipe.ZCard(ctx, q.stateKey(s))
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue counts: %w", err)
	}
	out := make(map[models.JobState]int64, len(cmds))
	for s, c := range cmds {
		out[s] = c.Val()
	}
	return out, nil
}

func decodeJob(f map[string]string) (models.Job, error) {
	job := models.Job{
		ID:           f["id"],
		Type:         f["type"],
		Data:         json.RawMessage(f["data"]),
		State:        models.JobState(f["state"]),
		FailedReason: f["failed_reason"],
	}
	var err error
	if job.DelayMs, err = parseInt(f, "delay"); err != nil {
		return job, err
	}
	attempts, err := parseInt(f, "attempts_made")
	if err != nil {
		return job, err
	}
	job.AttemptsMade = int(attempts)
	maxAttempts, err := parseInt(f, "max_attempts")
	if err != nil {
		return job, err
	}
	job.MaxAttempts = int(maxAttempts)
	created, err := parseInt(f, "created_at")
	if err != nil {
		return job, err
	}
	job.CreatedAt = time.UnixMilli(created)
	job.ProcessedAt = parseOptionalTime(f, "processed_at")
	job.FinishedAt = parseOptionalTime(f, "finished_at")
	return job, nil
}

func parseInt(f map[string]string, key string) (int64, error) {
	v, ok := f[key]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return n, nil
}

func parseOptionalTime(f map[string]string, key string) *time.Time {
	n, err := parseInt(f, key)
	if err != nil || n == 0 {
		return nil
	}
	t := time.UnixMilli(n)
	return &t
}

// KEYS: job, delayed, wait. ARGV: id, type, data, delay, max_attempts, now, due.
var addScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
local state = 'waiting'
if tonumber(ARGV[4]) > 0 then
  state = 'delayed'
end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'type', ARGV[2], 'data', ARGV[3], 'delay', ARGV[4],
  'max_attempts', ARGV[5], 'attempts_made', 0, 'created_at', ARGV[6], 'state', state)
if state == 'delayed' then
  redis.call('ZADD', KEYS[2], ARGV[7], ARGV[1])
else
  redis.call('RPUSH', KEYS[3], ARGV[1])
end
return 1
`)

// KEYS: delayed, wait. ARGV: now, limit, job prefix.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local n = 0
for _, id in ipairs(ids) do
  if redis.call('ZREM', KEYS[1], id) == 1 then
    redis.call('RPUSH', KEYS[2], id)
    redis.call('HSET', ARGV[3] .. id, 'state', 'waiting')
    n = n + 1
  end
end
return n
`)

// KEYS: wait, active. ARGV: lease deadline, now, job prefix.
var dequeueScript = redis.NewScript(`
while true do
  local job = redis.call('LPOP', KEYS[1])
  if not job then
    return nil
  end
  local key = ARGV[3] .. job
  if redis.call('EXISTS', key) == 1 then
    redis.call('ZADD', KEYS[2], ARGV[1], job)
    redis.call('HSET', key, 'state', 'active', 'processed_at', ARGV[2])
    redis.call('HINCRBY', key, 'attempts_made', 1)
    return job
  end
end
`)

// KEYS: active, completed, job. ARGV: id, now, keep, job prefix.
var completeScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
if redis.call('EXISTS', KEYS[3]) == 0 then
  return 0
end
redis.call('HSET', KEYS[3], 'state', 'completed', 'finished_at', ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
local keep = tonumber(ARGV[3])
if keep >= 0 then
  local excess = redis.call('ZCARD', KEYS[2]) - keep
  if excess > 0 then
    local old = redis.call('ZRANGE', KEYS[2], 0, excess - 1)
    for _, id in ipairs(old) do
      redis.call('DEL', ARGV[4] .. id)
    end
    redis.call('ZREMRANGEBYRANK', KEYS[2], 0, excess - 1)
  end
end
return 1
`)

// KEYS: active, delayed, failed, job. ARGV: id, now, reason, retry_at (0 = final), keep, job prefix.
var failScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
if redis.call('EXISTS', KEYS[4]) == 0 then
  return 0
end
redis.call('HSET', KEYS[4], 'failed_reason', ARGV[3])
if tonumber(ARGV[4]) > 0 then
  redis.call('HSET', KEYS[4], 'state', 'delayed')
  redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
  return 1
end
redis.call('HSET', KEYS[4], 'state', 'failed', 'finished_at', ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
local keep = tonumber(ARGV[5])
if keep >= 0 then
  local excess = redis.call('ZCARD', KEYS[3]) - keep
  if excess > 0 then
    local old = redis.call('ZRANGE', KEYS[3], 0, excess - 1)
    for _, id in ipairs(old) do
      redis.call('DEL', ARGV[6] .. id)
    end
    redis.call('ZREMRANGEBYRANK', KEYS[3], 0, excess - 1)
  end
end
return 2
`)

// KEYS: active, wait. ARGV: now, limit, job prefix.
var requeueScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local out = {}
for _, id in ipairs(ids) do
  if redis.call('ZREM', KEYS[1], id) == 1 and redis.call('EXISTS', ARGV[3] .. id) == 1 then
    redis.call('RPUSH', KEYS[2], id)
    redis.call('HSET', ARGV[3] .. id, 'state', 'waiting')
    table.insert(out, id)
  end
end
return out
`)

// KEYS: wait, delayed, active, completed, failed, job. ARGV: id.
var removeScript = redis.NewScript(`
redis.call('LREM', KEYS[1], 0, ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('ZREM', KEYS[5], ARGV[1])
return redis.call('DEL', KEYS[6])
`)
