package harness

import (
	"context"
	"fmt"
	"net"
	"os"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/svlang/slang-harness/internal/fakeserver"
)

// testModeEnv switches the re-executed test binary into a helper role, so
// subprocess tests get a real server process without a separate build.
const testModeEnv = "SLANG_HARNESS_TEST_MODE"

func TestMain(m *testing.M) {
	switch os.Getenv(testModeEnv) {
	case "fakeserver":
		if err := fakeserver.NewServer().Run(context.Background()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	case "exit":
		os.Exit(0)
	case "stderr-exit":
		fmt.Fprintln(os.Stderr, "parting words")
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// startInProcClient wires a client to an in-process fake server over a
// synchronous pipe. Used by tests that exercise protocol behavior without a
// subprocess.
func startInProcClient(t *testing.T) *Client {
	t.Helper()

	clientSide, serverSide := net.Pipe()
	go func() {
		_ = fakeserver.NewServer().RunOn(context.Background(), serverSide)
	}()

	c := newClient(context.Background(), clientSide, nil, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// startScriptedClient wires a client to a raw pipe the test writes frames
// into. Incoming client traffic is drained and discarded.
func startScriptedClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()

	clientSide, scriptSide := net.Pipe()
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := scriptSide.Read(buf); err != nil {
				return
			}
		}
	}()

	c := newClient(context.Background(), clientSide, nil, zaptest.NewLogger(t))
	t.Cleanup(func() {
		_ = c.Close()
		_ = scriptSide.Close()
	})
	return c, scriptSide
}

// writeFrame sends one Content-Length framed JSON-RPC message.
func writeFrame(t *testing.T, w net.Conn, body string) {
	t.Helper()
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n%s", len(body), body); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
}
