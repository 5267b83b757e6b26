package properties

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"path/filepath"
	"sync"
	"testing"
)

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "npm:lodash/-/lodash-4.17.15.tgz", "test.timestamp")
	require.NoError(t, err)
	assert.False(t, ok)

	has, err := s.Has(ctx, "npm:lodash/-/lodash-4.17.15.tgz", "test.timestamp")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.Set(ctx, "npm:lodash/-/lodash-4.17.15.tgz", "test.timestamp", "2024-01-01T00:00:00Z"))
	require.NoError(t, s.Set(ctx, "npm:lodash/-/lodash-4.17.15.tgz", "issue.url", "https://example.com"))

	v, ok, err := s.Get(ctx, "npm:lodash/-/lodash-4.17.15.tgz", "test.timestamp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-01T00:00:00Z", v)

	// Last writer wins.
	require.NoError(t, s.Set(ctx, "npm:lodash/-/lodash-4.17.15.tgz", "test.timestamp", "2024-02-01T00:00:00Z"))
	v, _, err = s.Get(ctx, "npm:lodash/-/lodash-4.17.15.tgz", "test.timestamp")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01T00:00:00Z", v)

	// Properties are scoped per artifact.
	_, ok, err = s.Get(ctx, "npm:other/-/other-1.0.0.tgz", "test.timestamp")
	require.NoError(t, err)
	assert.False(t, ok)

	// Empty values are still present.
	require.NoError(t, s.Set(ctx, "npm:other/-/other-1.0.0.tgz", "issue.licenses.forceDownload.info", ""))
	has, err = s.Has(ctx, "npm:other/-/other-1.0.0.tgz", "issue.licenses.forceDownload.info")
	require.NoError(t, err)
	assert.True(t, has)

	a := ForArtifact(s, "npm:lodash/-/lodash-4.17.15.tgz")
	assert.Equal(t, "npm:lodash/-/lodash-4.17.15.tgz", a.ID())
	v, ok, err = a.Get(ctx, "issue.url")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com", v)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exerciseStore(t, s)
}

func TestMemoryStoreConcurrentWriters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	wg := &sync.WaitGroup{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Set(ctx, "id", "key", "value")
		}()
	}
	wg.Wait()
	v, ok, err := s.Get(ctx, "id", "key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "props.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "props.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "pypi:foo-1.0.tar.gz", "issue.vulnerabilities", "0 critical, 1 high, 0 medium, 0 low"))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get(ctx, "pypi:foo-1.0.tar.gz", "issue.vulnerabilities")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0 critical, 1 high, 0 medium, 0 low", v)
}

func TestConfigMapStore(t *testing.T) {
	client := fake.NewSimpleClientset()
	s := NewConfigMapStore(client, "artifacts")
	exerciseStore(t, s)

	cm, err := client.CoreV1().ConfigMaps("artifacts").Get(context.Background(), configMapName("npm:lodash/-/lodash-4.17.15.tgz"), metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "npm:lodash/-/lodash-4.17.15.tgz", cm.Annotations[artifactIDAnnotation])
	assert.Equal(t, managedByValue, cm.Labels[managedByLabel])
	assert.Len(t, cm.Data, 2)
}

func TestConfigMapNameIsStableAndValid(t *testing.T) {
	name := configMapName("npm:@babel/core/-/core-7.0.0-rc.4.tgz")
	assert.Equal(t, name, configMapName("npm:@babel/core/-/core-7.0.0-rc.4.tgz"))
	assert.Regexp(t, `^[a-z0-9-]+$`, name)
	assert.LessOrEqual(t, len(name), 253)
	assert.NotEqual(t, name, configMapName("npm:@babel/core/-/core-7.0.0.tgz"))
}

func TestNew(t *testing.T) {
	s, err := New(Config{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(Config{Type: "SQLite", DSN: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	s.Close()

	s, err = New(Config{Type: "dynamodb", Table: "artifact-properties"})
	require.NoError(t, err)
	assert.IsType(t, &DynamoDBStore{}, s)

	_, err = New(Config{Type: "postgres"})
	assert.Error(t, err)
	_, err = New(Config{Type: "dynamodb"})
	assert.Error(t, err)
	_, err = New(Config{Type: "etcd"})
	assert.Error(t, err)
}
