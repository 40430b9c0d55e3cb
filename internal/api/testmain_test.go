package api

import (
	"fmt"
	"os"
	"testing"

	"github.com/banshee-data/pointnormals/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func captureLogs(lines *[]string) func() {
	prev := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		*lines = append(*lines, fmt.Sprintf(format, v...))
	})
	return func() { monitoring.SetLogger(prev) }
}
