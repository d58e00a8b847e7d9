package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// MemoryPathPrefix is where the memory store expects to be mounted.
const MemoryPathPrefix = "/blobs/"

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
	etag        string
}

// MemoryStorage is a BlobStore that keeps objects in process memory and
// serves its own HMAC-signed URLs. It backs the "memory" storage driver.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject

	baseURL string
	key     []byte
	now     func() time.Time
}

// NewMemoryStorage creates an empty store whose URLs point at baseURL.
// A random signing key is generated when signingKey is empty.
func NewMemoryStorage(baseURL string, signingKey []byte) (*MemoryStorage, error) {
	if len(signingKey) == 0 {
		signingKey = make([]byte, 32)
		if _, err := rand.Read(signingKey); err != nil {
			return nil, pkgerrors.Wrap(err, "generate signing key")
		}
	}
	return &MemoryStorage{
		objects: make(map[string]memoryObject),
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     signingKey,
		now:     time.Now,
	}, nil
}

func (m *MemoryStorage) sign(method, key string, expires int64, contentType string) string {
	mac := hmac.New(sha256.New, m.key)
	mac.Write([]byte(method + "\n" + key + "\n" + strconv.FormatInt(expires, 10) + "\n" + contentType))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *MemoryStorage) signedURL(method, key, contentType string, ttl time.Duration) (string, time.Time, error) {
	u, err := url.Parse(m.baseURL)
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(err, "parse base url")
	}
	expiresAt := m.now().Add(ttl)
	expires := expiresAt.Unix()

	u.Path = path.Join(u.Path, MemoryPathPrefix, key)
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", m.sign(method, key, expires, contentType))
	u.RawQuery = q.Encode()
	return u.String(), expiresAt, nil
}

func (m *MemoryStorage) IssueWriteURL(_ context.Context, key, contentType string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultUploadURLTTL
	}
	return m.signedURL(http.MethodPut, key, contentType, ttl)
}

func (m *MemoryStorage) IssueReadURL(_ context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultDownloadURLTTL
	}
	return m.signedURL(http.MethodGet, key, "", ttl)
}

func (m *MemoryStorage) ObjectExists(ctx context.Context, key string) (bool, error) {
	return existsViaStat(ctx, m, key)
}

func (m *MemoryStorage) StatObject(_ context.Context, key string) (*ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return &ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: obj.modified,
		ETag:         obj.etag,
	}, nil
}

func (m *MemoryStorage) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// PutObject stores data under key directly, bypassing signed URLs.
func (m *MemoryStorage) PutObject(key, contentType string, data []byte) {
	sum := sha256.Sum256(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		modified:    m.now().UTC(),
		etag:        hex.EncodeToString(sum[:16]),
	}
}

// ServeHTTP accepts PUT and GET requests on signed URLs issued by this store.
func (m *MemoryStorage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, MemoryPathPrefix)
	if key == r.URL.Path || key == "" {
		http.NotFound(w, r)
		return
	}

	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	contentType := ""
	if method == http.MethodPut {
		contentType = r.Header.Get("Content-Type")
	}
	if !m.verify(method, key, contentType, r.URL.Query()) {
		http.Error(w, "request signature invalid or expired", http.StatusForbidden)
		return
	}

	switch method {
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		m.PutObject(key, contentType, data)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		m.mu.RLock()
		obj, ok := m.objects[key]
		m.mu.RUnlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", obj.contentType)
		w.Header().Set("ETag", `"`+obj.etag+`"`)
		http.ServeContent(w, r, path.Base(key), obj.modified, bytes.NewReader(obj.data))
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (m *MemoryStorage) verify(method, key, contentType string, q url.Values) bool {
	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil || m.now().Unix() > expires {
		return false
	}
	want := m.sign(method, key, expires, contentType)
	return hmac.Equal([]byte(want), []byte(q.Get("sig")))
}
