package tlsroots

import (
	"crypto/x509"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWatcher_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewWatcher(filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key")); err == nil {
		t.Error("NewWatcher() should fail for missing files")
	}

	certFile := filepath.Join(dir, "bad.crt")
	os.WriteFile(certFile, []byte("garbage"), 0o600)
	if _, err := NewWatcher(certFile, certFile); err == nil {
		t.Error("NewWatcher() should fail for invalid PEM")
	}
}

func TestWatcher_Options(t *testing.T) {
	dir := t.TempDir()
	ca := newTestCA(t, dir)
	certFile, keyFile := filepath.Join(dir, "s.crt"), filepath.Join(dir, "s.key")
	ca.issue(t, certFile, keyFile, x509.ExtKeyUsageServerAuth)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	w, err := NewWatcher(certFile, keyFile, WithLogger(logger), WithDebounce(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if w.logger != logger || w.debounce != time.Second {
		t.Error("options not applied")
	}

	cert, _ := w.GetCertificate(nil)
	clientCert, _ := w.GetClientCertificate(nil)
	if cert == nil || cert != clientCert {
		t.Error("GetCertificate and GetClientCertificate should return the loaded pair")
	}
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	ca := newTestCA(t, dir)
	certFile, keyFile := filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key")
	first := ca.issue(t, certFile, keyFile, x509.ExtKeyUsageServerAuth)

	w, err := NewWatcher(certFile, keyFile, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.StartAsync()
	defer w.Stop()

	if got := serial(t, w); got.Cmp(first) != 0 {
		t.Fatalf("initial serial = %v, want %v", got, first)
	}

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	second := ca.issue(t, certFile, keyFile, x509.ExtKeyUsageServerAuth)

	deadline := time.Now().Add(5 * time.Second)
	for serial(t, w).Cmp(second) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("certificate was not reloaded")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWatcher_KeepsCertOnBadReload(t *testing.T) {
	dir := t.TempDir()
	ca := newTestCA(t, dir)
	certFile, keyFile := filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key")
	first := ca.issue(t, certFile, keyFile, x509.ExtKeyUsageServerAuth)

	w, err := NewWatcher(certFile, keyFile, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	w.StartAsync()
	defer w.Stop()
	time.Sleep(100 * time.Millisecond)

	os.WriteFile(certFile, []byte("truncated"), 0o600)
	time.Sleep(200 * time.Millisecond)

	if got := serial(t, w); got.Cmp(first) != 0 {
		t.Errorf("serial = %v after failed reload, want %v", got, first)
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	dir := t.TempDir()
	ca := newTestCA(t, dir)
	certFile, keyFile := filepath.Join(dir, "s.crt"), filepath.Join(dir, "s.key")
	ca.issue(t, certFile, keyFile, x509.ExtKeyUsageServerAuth)

	w, err := NewWatcher(certFile, keyFile)
	if err != nil {
		t.Fatal(err)
	}
	w.StartAsync()
	w.Stop()
	w.Stop()
}

func serial(t *testing.T, w *Watcher) *big.Int {
	t.Helper()
	cert, _ := w.GetCertificate(nil)
	leaf := cert.Leaf
	if leaf == nil {
		var err error
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			t.Fatal(err)
		}
	}
	return leaf.SerialNumber
}
