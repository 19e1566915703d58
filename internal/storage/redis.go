package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	logx "mtcbot/pkg/logx"
)

const historyKeep = 1000

// redisStore keeps:
//   - <p>:recipient:<id>     hash {name, first_seen, last_seen} (unix ms)
//   - <p>:recipients         set of every known id
//   - <p>:recipients:active  set of active ids
//   - <p>:history            list of JSON entries, newest first
//   - <p>:homework           hash id -> JSON item
//   - <p>:homework:order     list of ids in insertion order
//   - <p>:homework:seq       id counter
type redisStore struct {
	client *redis.Client
	prefix string
	log    logx.Logger
	now    func() time.Time
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	prefix := strings.TrimSpace(cfg.Redis.Prefix)
	if prefix == "" {
		prefix = "mtcbot"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "storage: redis ping")
	}
	return &redisStore{client: client, prefix: prefix, log: log, now: time.Now}, nil
}

func (s *redisStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *redisStore) Close() error { return s.client.Close() }

func (s *redisStore) RecordSeen(ctx context.Context, id, displayName string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	now := s.now().UnixMilli()
	rk := s.key("recipient", id)

	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, rk, "first_seen", now)
	pipe.HSet(ctx, rk, "last_seen", now)
	if strings.TrimSpace(displayName) != "" {
		pipe.HSet(ctx, rk, "name", displayName)
	}
	pipe.SAdd(ctx, s.key("recipients"), id)
	pipe.SAdd(ctx, s.key("recipients", "active"), id)
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "storage: record seen")
}

func (s *redisStore) ListActive(ctx context.Context) ([]Recipient, error) {
	ids, err := s.client.SMembers(ctx, s.key("recipients", "active")).Result()
	if err != nil {
		return nil, errors.Wrap(err, "storage: list recipients")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key("recipient", id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, "storage: load recipients")
	}

	out := make([]Recipient, 0, len(ids))
	for i, id := range ids {
		h := cmds[i].Val()
		out = append(out, Recipient{
			ID:          id,
			DisplayName: h["name"],
			FirstSeen:   unixMilli(h["first_seen"]),
			LastSeen:    unixMilli(h["last_seen"]),
			Active:      true,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *redisStore) CountActive(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.key("recipients", "active")).Result()
	return int(n), errors.Wrap(err, "storage: count recipients")
}

func (s *redisStore) Deactivate(ctx context.Context, id string) error {
	n, err := s.client.SRem(ctx, s.key("recipients", "active"), id).Result()
	if err != nil {
		return errors.Wrap(err, "storage: deactivate")
	}
	if n > 0 {
		return nil
	}
	known, err := s.client.SIsMember(ctx, s.key("recipients"), id).Result()
	if err != nil {
		return errors.Wrap(err, "storage: deactivate")
	}
	if !known {
		return ErrNotFound
	}
	return nil
}

func (s *redisStore) AppendHistory(ctx context.Context, e HistoryEntry) error {
	if e.At.IsZero() {
		e.At = s.now()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key("history"), b)
	pipe.LTrim(ctx, s.key("history"), 0, historyKeep-1)
	_, err = pipe.Exec(ctx)
	return errors.Wrap(err, "storage: append history")
}

func (s *redisStore) RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	stop := int64(limit) - 1
	if limit <= 0 {
		stop = -1
	}
	raw, err := s.client.LRange(ctx, s.key("history"), 0, stop).Result()
	if err != nil {
		return nil, errors.Wrap(err, "storage: recent history")
	}
	out := make([]HistoryEntry, 0, len(raw))
	for _, r := range raw {
		var e HistoryEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			s.log.Debug("skip bad history entry", logx.Err(err))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *redisStore) AddHomework(ctx context.Context, it HomeworkItem) (HomeworkItem, error) {
	seq, err := s.client.Incr(ctx, s.key("homework", "seq")).Result()
	if err != nil {
		return HomeworkItem{}, errors.Wrap(err, "storage: homework id")
	}
	it.ID = strconv.FormatInt(seq, 10)
	if it.CreatedAt.IsZero() {
		it.CreatedAt = s.now()
	}
	b, err := json.Marshal(it)
	if err != nil {
		return HomeworkItem{}, err
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key("homework"), it.ID, b)
	pipe.RPush(ctx, s.key("homework", "order"), it.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return HomeworkItem{}, errors.Wrap(err, "storage: add homework")
	}
	return it, nil
}

func (s *redisStore) ListHomework(ctx context.Context) ([]HomeworkItem, error) {
	ids, err := s.client.LRange(ctx, s.key("homework", "order"), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "storage: list homework")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	vals, err := s.client.HMGet(ctx, s.key("homework"), ids...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "storage: load homework")
	}
	out := make([]HomeworkItem, 0, len(vals))
	for i := len(vals) - 1; i >= 0; i-- {
		raw, ok := vals[i].(string)
		if !ok {
			continue
		}
		var it HomeworkItem
		if err := json.Unmarshal([]byte(raw), &it); err != nil {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (s *redisStore) ClearHomework(ctx context.Context) (int, error) {
	pipe := s.client.TxPipeline()
	n := pipe.HLen(ctx, s.key("homework"))
	pipe.Del(ctx, s.key("homework"), s.key("homework", "order"))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "storage: clear homework")
	}
	return int(n.Val()), nil
}

func (s *redisStore) HomeworkDue(ctx context.Context, due string) ([]HomeworkItem, error) {
	all, err := s.ListHomework(ctx)
	if err != nil {
		return nil, err
	}
	due = strings.TrimSpace(due)
	var out []HomeworkItem
	for i := len(all) - 1; i >= 0; i-- {
		if strings.TrimSpace(all[i].Due) == due {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func unixMilli(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
