//go:build integration

// Package containers starts disposable backing services for integration
// suites. Each helper fails the test when the service is not reachable and
// tears it down when the test ends.
package containers

import (
	"context"
	"io"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

// own hands container and conn to t. On a setup error it releases whatever
// was created and fails t immediately.
func own(t *testing.T, service string, container testcontainers.Container, conn io.Closer, err error) {
	t.Helper()
	teardown := func() {
		if conn != nil {
			_ = conn.Close()
		}
		if container != nil {
			_ = container.Terminate(context.Background())
		}
	}
	if err != nil {
		teardown()
		t.Fatalf("%s container: %v", service, err)
	}
	t.Cleanup(teardown)
}
