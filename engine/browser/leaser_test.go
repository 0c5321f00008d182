package browser_test

import (
	"io/ioutil"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"gitlab.com/driverk/engine/browser"
)

type fakeLeaser struct {
	mu    sync.Mutex
	next  int
	ports map[string]bool
}

func (f *fakeLeaser) Acquire() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	port := strconv.Itoa(9000 + f.next)
	f.ports[port] = true
	return port, nil
}

func (f *fakeLeaser) Return(port string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ports[port] {
		return browser.ErrNotLeased
	}
	delete(f.ports, port)
	return nil
}

func (f *fakeLeaser) Cleanup() (string, error) {
	f.mu.Lock()
	f.ports = make(map[string]bool)
	f.mu.Unlock()
	return "ok", nil
}

func (f *fakeLeaser) Count() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strconv.Itoa(len(f.ports)), nil
}

func TestSocketLeaser(t *testing.T) {
	dir, err := ioutil.TempDir("", "driverk-leaser")
	if err != nil {
		t.Fatalf("error creating temp dir: %s", err)
	}
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, browser.SOCK)

	l, err := net.Listen("unix", sock)
	if err != nil {
		t.Skipf("unix sockets unavailable: %s", err)
	}
	srv := &http.Server{Handler: browser.LeaserHandler(&fakeLeaser{ports: make(map[string]bool)})}
	go srv.Serve(l)
	defer srv.Close()

	leaser := browser.NewSocketLeaser(sock)
	port, err := leaser.Acquire()
	if err != nil {
		t.Fatalf("error acquiring: %s", err)
	}
	if port != "9001" {
		t.Fatalf("expected port 9001 got %s", port)
	}

	if count, _ := leaser.Count(); count != "1" {
		t.Fatalf("expected 1 leased browser got %s", count)
	}

	if err := leaser.Return(port); err != nil {
		t.Fatalf("error returning: %s", err)
	}
	if err := leaser.Return(port); !errors.Is(err, browser.ErrNotLeased) {
		t.Fatalf("expected not leased returning twice, got %v", err)
	}

	if res, err := leaser.Cleanup(); err != nil || res != "ok" {
		t.Fatalf("cleanup failed: %s %v", res, err)
	}
}
