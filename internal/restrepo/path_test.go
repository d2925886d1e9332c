package restrepo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKindListing(t *testing.T) {
	target, err := Parse("/myrepo/index/", false)
	require.NoError(t, err)
	assert.Equal(t, TargetKindList, target.Kind)
	assert.Equal(t, "myrepo", target.RepoPath)
	assert.Equal(t, KindIndex, target.ObjectKind)
}

func TestParseKindListingRequiresTrailingSlash(t *testing.T) {
	_, err := Parse("/myrepo/index", false)
	assert.Error(t, err)
}

func TestParseObject(t *testing.T) {
	name := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	target, err := Parse("/myrepo/data/"+name, false)
	require.NoError(t, err)
	assert.Equal(t, TargetObject, target.Kind)
	assert.Equal(t, KindData, target.ObjectKind)
	assert.Equal(t, name, target.Name)
}

func TestParseObjectRejectsTrailingSlash(t *testing.T) {
	name := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	_, err := Parse("/myrepo/data/"+name+"/", false)
	assert.Error(t, err)
}

func TestParseObjectRejectsBadName(t *testing.T) {
	_, err := Parse("/myrepo/data/nothex", false)
	assert.Error(t, err)
}

func TestParseConfig(t *testing.T) {
	target, err := Parse("/myrepo/config", false)
	require.NoError(t, err)
	assert.Equal(t, TargetConfig, target.Kind)
	assert.Equal(t, "myrepo", target.RepoPath)
}

func TestParseNestedRepoConfig(t *testing.T) {
	target, err := Parse("/tenants/alice/config", false)
	require.NoError(t, err)
	assert.Equal(t, TargetConfig, target.Kind)
	assert.Equal(t, "tenants/alice", target.RepoPath)
}

func TestParseRepoRootCreate(t *testing.T) {
	target, err := Parse("/myrepo/", true)
	require.NoError(t, err)
	assert.Equal(t, TargetRepo, target.Kind)
	assert.Equal(t, "myrepo", target.RepoPath)
	assert.True(t, target.Create)
}

func TestParseRootRepo(t *testing.T) {
	target, err := Parse("/", true)
	require.NoError(t, err)
	assert.Equal(t, TargetRepo, target.Kind)
	assert.Equal(t, "", target.RepoPath)
}

func TestParseHealth(t *testing.T) {
	target, err := Parse("/health/live", false)
	require.NoError(t, err)
	assert.Equal(t, TargetHealth, target.Kind)
}

func TestParseMetrics(t *testing.T) {
	target, err := Parse("/metrics", false)
	require.NoError(t, err)
	assert.Equal(t, TargetMetrics, target.Kind)
}

func TestValidNameLengths(t *testing.T) {
	hex32 := "00112233445566778899aabbccddeeff"
	hex64 := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

	assert.True(t, ValidName(KindKeys, hex32))
	assert.False(t, ValidName(KindKeys, hex64))
	assert.True(t, ValidName(KindSnapshots, hex64))
	assert.True(t, ValidName(KindConfigObj, ""))
	assert.False(t, ValidName(KindConfigObj, hex32))
}

func TestShardIsLowercasedPrefix(t *testing.T) {
	assert.Equal(t, "ab", Shard("ABcdef0011223344556677889900112233445566778899aabbccddeeff0011"))
}
