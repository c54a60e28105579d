package monitoring

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger_RedirectsAndMutes(t *testing.T) {
	original := Logf
	t.Cleanup(func() { Logf = original })

	var buf bytes.Buffer
	SetLogger(log.New(&buf, "", 0).Printf)
	Logf("rank %d joining %s", 2, "host:7070")
	assert.Equal(t, "rank 2 joining host:7070\n", buf.String())

	buf.Reset()
	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("run failed: %v", "boom") })
	assert.Empty(t, buf.String())
}
