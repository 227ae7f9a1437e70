package rtree

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/drpcorg/spindex/utils"
	"github.com/stretchr/testify/assert"
)

func TestLoggingListener_RateLimited(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggingListener(context.Background(), "rebuild", utils.NewWriterLogger(&buf, slog.LevelInfo), time.Second)
	clock := time.Unix(0, 0)
	l.now = func() time.Time { return clock }

	l.Begin(10)
	for i := 0; i < 10; i++ {
		clock = clock.Add(300 * time.Millisecond)
		l.Worked(1)
	}
	l.Done()

	out := buf.String()
	assert.Contains(t, out, "progress begin")
	assert.Contains(t, out, "progress done")
	assert.Contains(t, out, "task=rebuild")
	// lines at 1.2s and 2.4s, the rest fall inside the interval
	assert.Equal(t, 2, strings.Count(out, "msg=\"[spindex] progress\""))
	assert.Contains(t, out, "done=10")
}
