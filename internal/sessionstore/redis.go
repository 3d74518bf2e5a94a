package sessionstore

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/askiada/molsim/pkg/wire"
	"github.com/askiada/molsim/pkg/workflow"
)

const (
	keyPrefix = "session:"
	// DefaultTTL is how long a session is kept after its last change.
	DefaultTTL = 24 * time.Hour
	// maxTxRetries bounds the optimistic transaction retries of an update.
	maxTxRetries = 10
)

// Redis stores sessions as JSON documents under session:{id}. Every change extends the TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis connects to the server at url, such as redis://localhost:6379/0, and pings it.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse redis url")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, errors.Wrap(err, "unable to connect to redis")
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Redis{client: client, ttl: ttl, now: time.Now}, nil
}

func key(id string) string {
	return keyPrefix + id
}

func (r *Redis) Create(ctx context.Context, appID, email string) (Session, error) {
	s := newSession(uuid.NewString(), appID, email, r.now())

	data, err := sonic.Marshal(s)
	if err != nil {
		return Session{}, errors.Wrap(err, "unable to encode session")
	}

	ok, err := r.client.SetNX(ctx, key(s.ID), data, r.ttl).Result()
	if err != nil {
		return Session{}, errors.Wrap(err, "unable to create session")
	}
	if !ok {
		return Session{}, errors.Errorf("session %s already exists", s.ID)
	}

	return s, nil
}

func (r *Redis) Get(ctx context.Context, id string) (Session, error) {
	return r.get(ctx, r.client, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Redis) get(ctx context.Context, c getter, id string) (Session, error) {
	data, err := c.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, errors.Wrap(ErrNotFound, id)
		}

		return Session{}, errors.Wrap(err, "unable to get session")
	}

	var s Session
	if err := sonic.Unmarshal(data, &s); err != nil {
		return Session{}, errors.Wrapf(err, "unable to decode session %s", id)
	}
	if s.Widgets == nil {
		s.Widgets = map[string]wire.WidgetSnapshot{}
	}

	return s, nil
}

func (r *Redis) Upsert(ctx context.Context, id string, outputs wire.Outputs) (Session, error) {
	return r.update(ctx, id, func(s Session) Session {
		return s.merge(outputs, r.now())
	})
}

func (r *Redis) SetStatus(ctx context.Context, id string, statuses map[string]workflow.Status) (Session, error) {
	if err := ValidateStatuses(statuses); err != nil {
		return Session{}, err
	}

	return r.update(ctx, id, func(s Session) Session {
		return s.withStatus(statuses, r.now())
	})
}

// update applies fn in an optimistic transaction on the session key.
func (r *Redis) update(ctx context.Context, id string, fn func(Session) Session) (Session, error) {
	var res Session

	txf := func(tx *redis.Tx) error {
		s, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}

		next := fn(s)
		data, err := sonic.Marshal(next)
		if err != nil {
			return errors.Wrap(err, "unable to encode session")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(id), data, r.ttl)

			return nil
		})
		if err != nil {
			return err
		}
		res = next

		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key(id))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Session{}, err
			}

			return Session{}, errors.Wrapf(err, "unable to update session %s", id)
		}

		return res, nil
	}

	return Session{}, errors.Errorf("unable to update session %s: too much contention", id)
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Store = (*Redis)(nil)
