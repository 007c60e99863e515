package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures one monitoring loop tick
type Timer struct {
	start   time.Time
	metrics *Metrics
	loop    string
}

// NewTimer starts timing a tick of loop
func NewTimer(metrics *Metrics, loop string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		loop:    loop,
	}
}

// Stop records the elapsed time
func (t *Timer) Stop() {
	t.metrics.ObserveTick(t.loop, time.Since(t.start))
}
