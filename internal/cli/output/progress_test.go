package output

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProgressBar_TeeReader(t *testing.T) {
	var out bytes.Buffer
	bar := NewProgressBar(&out, "download", 2048)

	n, err := io.Copy(io.Discard, io.TeeReader(bytes.NewReader(make([]byte, 2048)), bar))
	if err != nil || n != 2048 {
		t.Fatalf("copy = %d, %v", n, err)
	}
	bar.Finish()

	if bar.Current() != 2048 {
		t.Errorf("Current() = %d", bar.Current())
	}
	if !strings.Contains(out.String(), "100%") || !strings.HasSuffix(out.String(), "\n") {
		t.Errorf("output = %q", out.String())
	}
}

func TestProgressBar_UnknownTotal(t *testing.T) {
	var out bytes.Buffer
	bar := NewProgressBar(&out, "download", 0)
	bar.Write(make([]byte, 10))
	if !strings.Contains(out.String(), "download 10 B") {
		t.Errorf("output = %q", out.String())
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_Success(t *testing.T) {
	var out lockedBuffer
	s := NewSpinner(&out, "saving")
	s.interval = time.Millisecond
	s.Start()
	time.Sleep(10 * time.Millisecond)
	s.Success("saved")
	s.Stop() // second stop is a no-op

	got := out.String()
	if !strings.Contains(got, "saving") {
		t.Errorf("spinner never drew its message: %q", got)
	}
	if !strings.HasSuffix(got, "saved\n") {
		t.Errorf("output should end with success line: %q", got)
	}
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	var out lockedBuffer
	s := NewSpinner(&out, "x")
	s.Fail("boom")
	if !strings.Contains(out.String(), "failed: boom") {
		t.Errorf("output = %q", out.String())
	}
}
