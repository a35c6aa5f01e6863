package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Garmelon/tablejohn/internal/gitlib"
)

func TestFormatSignature(t *testing.T) {
	sig := gitlib.Signature{Name: "Ada Lovelace", Email: "ada@example.com", When: time.Now()}

	assert.Equal(t, "Ada Lovelace <ada@example.com>", formatSignature(sig))
}
