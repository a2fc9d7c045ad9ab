package taskqueue

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestIsConnErr(t *testing.T) {
	refused := &net.OpError{
		Op: "dial", Net: "tcp",
		Err: os.NewSyscallError("connect", syscall.ECONNREFUSED),
	}
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"dial refused", refused, true},
		{"wrapped dial refused", fmt.Errorf("enqueue: %w", refused), true},
		{"dns timeout", &net.DNSError{Err: "lookup timed out", IsTimeout: true}, true},
		{"bare econnreset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"broker rejection", errors.New("task ID conflicts with another task"), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := isConnErr(tc.err); got != tc.want {
			t.Errorf("%s: isConnErr = %v, want %v", tc.name, got, tc.want)
		}
	}
}
