package kv

import (
	"context"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

var bucketKV = []byte("aidos_kv")

type boltRecord struct {
	Value   string
	Expires int64 // unix nano, 0 means no expiry
}

// Bolt is an embedded, single-node durable Store backed by bbolt. It exists
// for deployments that want durability across process restarts without
// standing up Redis.
//
// Grounded on
// anhnv24810310060-source-SWARM-INTELLIGENCE-NETWORK/services/orchestrator/persistence.go's
// WorkflowStore: bbolt opened with a fsync-durable Options struct and one
// bucket per logical namespace. SetIfAbsent is trivially atomic here because
// bbolt serializes all writers through a single db.Update transaction.
type Bolt struct {
	db *bbolt.DB
}

// NewBolt opens (creating if absent) a bbolt database at path.
func NewBolt(path string) (*Bolt, error) {
	opts := &bbolt.Options{
		Timeout:      1 * time.Second,
		NoSync:       false,
		FreelistType: bbolt.FreelistArrayType,
	}
	db, err := bbolt.Open(path, 0600, opts)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error { return b.db.Close() }

func (b *Bolt) Set(_ context.Context, key, value string, ttl time.Duration) error {
	rec := encodeRecord(value, ttl)
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), rec)
	})
}

func (b *Bolt) Get(_ context.Context, key string) (string, error) {
	var value string
	var expired bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketKV).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		v, exp, ok := decodeRecord(raw)
		if !ok {
			return ErrNotFound
		}
		if exp != 0 && time.Now().UnixNano() > exp {
			expired = true
			return ErrNotFound
		}
		value = v
		return nil
	})
	if expired {
		_ = b.Del(context.Background(), key)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (b *Bolt) Del(_ context.Context, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Delete([]byte(key))
	})
}

func (b *Bolt) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	wrote := false
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketKV)
		raw := bucket.Get([]byte(key))
		if raw != nil {
			if _, exp, ok := decodeRecord(raw); ok && (exp == 0 || time.Now().UnixNano() <= exp) {
				return nil // already present and not expired
			}
		}
		wrote = true
		return bucket.Put([]byte(key), encodeRecord(value, ttl))
	})
	return wrote, err
}

func (b *Bolt) Keys(_ context.Context, pattern string) ([]string, error) {
	prefix := []byte(strings.TrimSuffix(pattern, "*"))
	now := time.Now().UnixNano()
	var out []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketKV).Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			if _, exp, ok := decodeRecord(v); ok && (exp == 0 || now <= exp) {
				out = append(out, string(k))
			}
		}
		return nil
	})
	return out, err
}

func (b *Bolt) Ping(_ context.Context) error {
	return b.db.View(func(tx *bbolt.Tx) error { return nil })
}

func encodeRecord(value string, ttl time.Duration) []byte {
	var expires int64
	if ttl > 0 {
		expires = time.Now().Add(ttl).UnixNano()
	}
	// Simple NUL-delimited encoding: "<expires>\x00<value>"
	return append(itoaBytes(expires), append([]byte{0}, []byte(value)...)...)
}

func decodeRecord(raw []byte) (value string, expires int64, ok bool) {
	idx := -1
	for i, c := range raw {
		if c == 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", 0, false
	}
	expires = atoi64(raw[:idx])
	return string(raw[idx+1:]), expires, true
}

func itoaBytes(n int64) []byte {
	if n == 0 {
		return []byte("0")
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}

func atoi64(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	neg := false
	i := 0
	if b[0] == '-' {
		neg = true
		i = 1
	}
	var n int64
	for ; i < len(b); i++ {
		n = n*10 + int64(b[i]-'0')
	}
	if neg {
		n = -n
	}
	return n
}
