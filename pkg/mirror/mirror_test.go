package mirror

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestMemoryReadWriteRemove(t *testing.T) {
	m := NewMemory()

	if _, ok, err := m.Read("a"); ok || err != nil {
		t.Fatalf("Read on empty store = ok %v, err %v", ok, err)
	}

	if err := m.Write("a", "1"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = m.Write("b", "2")

	v, ok, err := m.Read("a")
	if err != nil || !ok || v != "1" {
		t.Errorf("Read(a) = %q, %v, %v; want 1, true, nil", v, ok, err)
	}
	if got := m.Keys(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Keys() = %v, want [a b]", got)
	}

	if err := m.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := m.Remove("missing"); err != nil {
		t.Errorf("Remove(missing) = %v, want nil", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", m.Len())
	}
}

func TestSessionsScope(t *testing.T) {
	s := NewSessions()
	defer s.Close()

	a := s.Scope("a")
	_ = a.Write("k", "v")

	if got := s.Scope("a"); got != a {
		t.Error("Scope returned a different store for the same id")
	}
	if _, ok, _ := s.Scope("b").Read("k"); ok {
		t.Error("session b sees session a's entries")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}

	s.Drop("a")
	if _, ok, _ := s.Scope("a").Read("k"); ok {
		t.Error("dropped session kept its entries")
	}
}

func TestSessionsCleanup(t *testing.T) {
	s := NewSessions(WithIdleTimeout(time.Minute), WithCleanupInterval(time.Hour))
	defer s.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }

	s.Scope("old")
	now = now.Add(30 * time.Second)
	s.Scope("fresh")

	now = now.Add(45 * time.Second)
	s.cleanup()

	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	s.mu.Lock()
	_, ok := s.scopes["fresh"]
	s.mu.Unlock()
	if !ok {
		t.Error("fresh session was swept")
	}
}

func TestSessionsClose(t *testing.T) {
	s := NewSessions()
	s.Scope("a")

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() after Close = %d, want 0", s.Len())
	}
	if s.Scope("a") == nil {
		t.Error("Scope after Close returned nil")
	}
}

// fakeRedis implements RedisClient over a map.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	fail error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

type fakeCmd struct {
	val string
	err error
}

func (c fakeCmd) Result() (string, error) { return c.val, c.err }
func (c fakeCmd) Err() error              { return c.err }

func (f *fakeRedis) Get(_ context.Context, key string) RedisStringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return fakeCmd{err: f.fail}
	}
	v, ok := f.data[key]
	if !ok {
		return fakeCmd{err: ErrRedisNil}
	}
	return fakeCmd{val: v}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) RedisStatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return fakeCmd{err: f.fail}
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return fakeCmd{}
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) RedisIntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return fakeCmd{err: f.fail}
	}
	for _, k := range keys {
		delete(f.data, k)
	}
	return fakeCmd{}
}

func TestRedis(t *testing.T) {
	client := newFakeRedis()
	r := NewRedis(client, "sess1", WithRedisTTL(time.Hour))

	if _, ok, err := r.Read("color"); ok || err != nil {
		t.Fatalf("Read missing = ok %v, err %v; want false, nil", ok, err)
	}

	if err := r.Write("color", "red"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := client.data["hashstate:mirror:sess1:color"]; got != "red" {
		t.Errorf("stored value = %q, want red", got)
	}
	if got := client.ttls["hashstate:mirror:sess1:color"]; got != time.Hour {
		t.Errorf("ttl = %v, want 1h", got)
	}

	v, ok, err := r.Read("color")
	if err != nil || !ok || v != "red" {
		t.Errorf("Read = %q, %v, %v; want red, true, nil", v, ok, err)
	}

	if err := r.Remove("color"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := r.Read("color"); ok {
		t.Error("value still present after Remove")
	}
}

func TestRedisErrors(t *testing.T) {
	client := newFakeRedis()
	client.fail = errors.New("connection refused")
	r := NewRedis(client, "s", WithRedisPrefix("p:"))

	if r.Prefix() != "p:" {
		t.Errorf("Prefix() = %q, want p:", r.Prefix())
	}
	if _, _, err := r.Read("k"); err == nil {
		t.Error("Read should surface client errors")
	}
	if err := r.Write("k", "v"); err == nil {
		t.Error("Write should surface client errors")
	}
	if err := r.Remove("k"); err == nil {
		t.Error("Remove should surface client errors")
	}
}

// fakeS3 implements S3API over a map.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	fail    error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3ObjectKeyStaysInSession(t *testing.T) {
	store := NewS3(&fakeS3{objects: map[string]string{}}, "bucket", "hashstate", "sess1")

	tests := []struct {
		key  string
		want string
	}{
		{"page", "hashstate/sess1/page"},
		{"../sess2/page", "hashstate/sess1/..%2Fsess2%2Fpage"},
		{"..", "hashstate/sess1/%2E%2E"},
		{".", "hashstate/sess1/%2E"},
		{"a b", "hashstate/sess1/a%20b"},
	}
	for _, tt := range tests {
		if got := store.ObjectKey(tt.key); got != tt.want {
			t.Errorf("ObjectKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}

	other := NewS3(&fakeS3{objects: map[string]string{}}, "bucket", "", "../x")
	if got := other.ObjectKey("k"); got != "..%2Fx/k" {
		t.Errorf("ObjectKey with a dotted session = %q", got)
	}
}

func TestS3(t *testing.T) {
	client := &fakeS3{objects: map[string]string{}}
	store := NewS3(client, "bucket", "/hashstate/", "sess1").WithTimeout(time.Second)

	if got := store.ObjectKey("page"); got != "hashstate/sess1/page" {
		t.Errorf("ObjectKey = %q, want hashstate/sess1/page", got)
	}

	if _, ok, err := store.Read("page"); ok || err != nil {
		t.Fatalf("Read missing = ok %v, err %v; want false, nil", ok, err)
	}

	if err := store.Write("page", "3"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := client.objects["bucket/hashstate/sess1/page"]; got != "3" {
		t.Errorf("stored object = %q, want 3", got)
	}

	v, ok, err := store.Read("page")
	if err != nil || !ok || v != "3" {
		t.Errorf("Read = %q, %v, %v; want 3, true, nil", v, ok, err)
	}

	if err := store.Remove("page"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := store.Read("page"); ok {
		t.Error("object still present after Remove")
	}
}

func TestS3Errors(t *testing.T) {
	boom := errors.New("access denied")
	store := NewS3(&fakeS3{objects: map[string]string{}, fail: boom}, "b", "", "s")

	if _, _, err := store.Read("k"); !errors.Is(err, boom) {
		t.Errorf("Read err = %v, want wrapping %v", err, boom)
	}
	if err := store.Write("k", "v"); !errors.Is(err, boom) {
		t.Errorf("Write err = %v, want wrapping %v", err, boom)
	}
	if err := store.Remove("k"); !errors.Is(err, boom) {
		t.Errorf("Remove err = %v, want wrapping %v", err, boom)
	}
}

func TestS3OversizedObject(t *testing.T) {
	client := &fakeS3{objects: map[string]string{
		"b/s/big": strings.Repeat("x", maxS3Value+1),
	}}
	store := NewS3(client, "b", "", "s")

	if _, _, err := store.Read("big"); err == nil {
		t.Error("Read of an oversized object should fail")
	}
}
