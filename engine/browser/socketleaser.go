package browser

import (
	"context"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// SOCK is the default unix socket of the leaser service
const SOCK = "driverk.sock"

// SocketLeaser leases browsers from a leaser service (driverk leaser) over a
// unix socket, so browsers can live in a separate process or container.
type SocketLeaser struct {
	leaserClient http.Client
}

// NewSocketLeaser talking to the service listening on sock
func NewSocketLeaser(sock string) *SocketLeaser {
	if sock == "" {
		sock = SOCK
	}
	s := &SocketLeaser{}
	s.leaserClient = http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", sock)
			},
		},
	}
	return s
}

func (s *SocketLeaser) get(path string) (string, error) {
	resp, err := s.leaserClient.Get("http://unix" + path)
	if err != nil {
		return "", err
	}

	body, err := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return string(body), nil
	case http.StatusNotFound:
		return "", ErrNotLeased
	}
	return "", errors.Errorf("leaser %s: %d %s", path, resp.StatusCode, string(body))
}

// Acquire a new browser
func (s *SocketLeaser) Acquire() (string, error) {
	return s.get("/acquire")
}

// Count how many browsers
func (s *SocketLeaser) Count() (string, error) {
	return s.get("/count")
}

// Return (and kill) the browser
func (s *SocketLeaser) Return(port string) error {
	_, err := s.get("/return?port=" + url.QueryEscape(port))
	return err
}

// Cleanup all browsers of the service
func (s *SocketLeaser) Cleanup() (string, error) {
	return s.get("/cleanup")
}

// LeaserHandler serves leaser over http, the server side of SocketLeaser
func LeaserHandler(leaser LeaserService) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/acquire", func(w http.ResponseWriter, r *http.Request) {
		port, err := leaser.Acquire()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write([]byte(port))
	})
	mux.HandleFunc("/count", func(w http.ResponseWriter, r *http.Request) {
		count, _ := leaser.Count()
		w.Write([]byte(count))
	})
	mux.HandleFunc("/return", func(w http.ResponseWriter, r *http.Request) {
		err := leaser.Return(r.URL.Query().Get("port"))
		if errors.Is(err, ErrNotLeased) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/cleanup", func(w http.ResponseWriter, r *http.Request) {
		res, err := leaser.Cleanup()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write([]byte(res))
	})
	return mux
}
