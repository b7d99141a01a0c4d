package storage

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dharsanguruparan/fieldmemo/internal/signing"
)

type object struct {
	data        []byte
	contentType string
	storedAt    time.Time
}

// MemoryStore keeps blobs in process memory. RWMutex lets concurrent readers
// (transcription fetches, media downloads) proceed while uploads take the
// write lock. Removals are recorded so callers can audit cleanup.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]map[string]object
	removed map[string][]string

	signer  *signing.Signer
	baseURL string
	ttl     time.Duration
}

// NewMemoryStore constructs a MemoryStore. Public URLs point at
// {baseURL}/media/{bucket}/{key} and are signed with signer for ttl.
func NewMemoryStore(signer *signing.Signer, baseURL string, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]map[string]object),
		removed: make(map[string][]string),
		signer:  signer,
		baseURL: baseURL,
		ttl:     ttl,
	}
}

// Put stores a copy of data.
func (m *MemoryStore) Put(_ context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[bucket]
	if !ok {
		b = make(map[string]object)
		m.objects[bucket] = b
	}
	// Copy so later mutation of the caller's slice cannot change stored bytes.
	stored := make([]byte, len(data))
	copy(stored, data)
	b[key] = object{data: stored, contentType: contentType, storedAt: time.Now().UTC()}
	return key, nil
}

// Get returns a copy of the stored bytes.
func (m *MemoryStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

// ContentType returns the content type recorded at Put.
func (m *MemoryStore) ContentType(bucket, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[bucket][key]
	return obj.contentType, ok
}

// Remove deletes keys from bucket.
func (m *MemoryStore) Remove(_ context.Context, bucket string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.objects[bucket], key)
		m.removed[bucket] = append(m.removed[bucket], key)
	}
	return nil
}

// PublicURL returns a signed, expiring URL served by the API's media route.
func (m *MemoryStore) PublicURL(_ context.Context, bucket, key string) (string, error) {
	expiry := time.Now().Add(m.ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expiry, 10))
	q.Set("signature", m.signer.Sign(bucket+"/"+key, expiry))
	return m.baseURL + "/media/" + bucket + "/" + key + "?" + q.Encode(), nil
}

// Keys lists the keys currently stored in bucket, sorted.
func (m *MemoryStore) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects[bucket]))
	for k := range m.objects[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Removed lists every key passed to Remove for bucket, in call order.
func (m *MemoryStore) Removed(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.removed[bucket]...)
}
