package httpapi

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBasicAuth(t *testing.T) {
	cred := "Basic " + base64.StdEncoding.EncodeToString([]byte("worker-1:s3cr3t"))

	user, pass, ok := parseBasicAuth(cred)
	assert.True(t, ok)
	assert.Equal(t, "worker-1", user)
	assert.Equal(t, "s3cr3t", pass)
}

func TestParseBasicAuthRejectsMalformed(t *testing.T) {
	_, _, ok := parseBasicAuth("Bearer abc")
	assert.False(t, ok)

	_, _, ok = parseBasicAuth("Basic not-base64!!")
	assert.False(t, ok)
}

func TestWorkerNamePattern(t *testing.T) {
	assert.True(t, workerNamePattern.MatchString("worker-1.local_a"))
	assert.False(t, workerNamePattern.MatchString("worker 1"))
	assert.False(t, workerNamePattern.MatchString(""))
}
