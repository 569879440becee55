package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobNameDeterministic(t *testing.T) {
	a := BlobName([]byte("payload"))
	b := BlobName([]byte("payload"))
	c := BlobName([]byte("payload2"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte("same")
	assert.NotEqual(t, hashWithDomain(DomainBlob, data), hashWithDomain(DomainSnapshot, data))
}

func TestSnapshotDigestIgnoresLayout(t *testing.T) {
	a, err := SnapshotDigest([]byte(`{"b":1,"a":[1,2]}`))
	require.NoError(t, err)
	b, err := SnapshotDigest([]byte("{\n  \"a\": [1, 2],\n  \"b\": 1\n}"))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := SnapshotDigest([]byte(`{"a":[2,1],"b":1}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSnapshotDigestInvalid(t *testing.T) {
	_, err := SnapshotDigest([]byte(`{`))
	assert.Error(t, err)
}
