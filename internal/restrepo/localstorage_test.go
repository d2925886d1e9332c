package restrepo

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKeyName  = "00112233445566778899aabbccddeeff"
	testDataName = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	return NewLocalStorage(t.TempDir(), 0, nil)
}

func TestCreateRepoThenWriteConfig(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.CreateRepo(ctx, "myrepo"))

	exists, err := s.RepoExists(ctx, "myrepo")
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := s.Write(ctx, "myrepo", KindConfigObj, "", strings.NewReader(`{"id":"abc"}`))
	require.NoError(t, err)
	assert.EqualValues(t, len(`{"id":"abc"}`), n)
}

func TestCreateRepoTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	require.NoError(t, s.CreateRepo(ctx, "myrepo"))

	err := s.CreateRepo(ctx, "myrepo")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestWriteWithoutRepoFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.Write(ctx, "ghost", KindKeys, testKeyName, strings.NewReader("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	require.NoError(t, s.CreateRepo(ctx, "myrepo"))

	_, err := s.Write(ctx, "myrepo", KindKeys, testKeyName, strings.NewReader("first"))
	require.NoError(t, err)

	_, err = s.Write(ctx, "myrepo", KindKeys, testKeyName, strings.NewReader("second"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	result, err := s.Read(ctx, "myrepo", KindKeys, testKeyName, nil)
	require.NoError(t, err)
	defer result.Close()
	body, err := io.ReadAll(result)
	require.NoError(t, err)
	assert.Equal(t, "first", string(body))
}

func TestReadRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	require.NoError(t, s.CreateRepo(ctx, "myrepo"))
	_, err := s.Write(ctx, "myrepo", KindData, testDataName, strings.NewReader("0123456789"))
	require.NoError(t, err)

	result, err := s.Read(ctx, "myrepo", KindData, testDataName, &ByteRange{Start: 2, End: 5})
	require.NoError(t, err)
	defer result.Close()

	body, err := io.ReadAll(result)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(body))
	assert.EqualValues(t, 10, result.TotalSize)
}

func TestReadRangeOutOfBounds(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	require.NoError(t, s.CreateRepo(ctx, "myrepo"))
	_, err := s.Write(ctx, "myrepo", KindData, testDataName, strings.NewReader("0123456789"))
	require.NoError(t, err)

	_, err = s.Read(ctx, "myrepo", KindData, testDataName, &ByteRange{Start: 20, End: 30})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRangeNotSatisfiable)
}

func TestListSkipsTempFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	require.NoError(t, s.CreateRepo(ctx, "myrepo"))
	_, err := s.Write(ctx, "myrepo", KindKeys, testKeyName, strings.NewReader("x"))
	require.NoError(t, err)

	entries, err := s.List(ctx, "myrepo", KindKeys)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testKeyName, entries[0].Name)
}

func TestDataObjectIsSharded(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	require.NoError(t, s.CreateRepo(ctx, "myrepo"))
	_, err := s.Write(ctx, "myrepo", KindData, testDataName, strings.NewReader("blob"))
	require.NoError(t, err)

	path := s.objectPath("myrepo", KindData, testDataName)
	assert.Contains(t, path, "/data/"+Shard(testDataName)+"/")
}

func TestQuotaExceeded(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStorage(t.TempDir(), 5, nil)
	require.NoError(t, s.CreateRepo(ctx, "myrepo"))

	_, err := s.Write(ctx, "myrepo", KindData, testDataName, strings.NewReader("this is far more than five bytes"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestDeleteNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	require.NoError(t, s.CreateRepo(ctx, "myrepo"))

	err := s.Delete(ctx, "myrepo", KindKeys, testKeyName)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
