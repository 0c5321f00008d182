package browser

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/wirepair/gcd"
)

// ErrNotLeased when returning a port we never handed out
var ErrNotLeased = errors.New("browser not found")

// LocalLeaser starts chrome processes on this host
type LocalLeaser struct {
	browserLock sync.RWMutex
	browsers    map[string]*gcd.Gcd
	chromePath  string
	tmp         string
	headless    bool
	killOld     bool
}

// LeaserOption configures a LocalLeaser
type LeaserOption func(s *LocalLeaser)

// WithChromePath overrides the located chrome binary
func WithChromePath(path string) LeaserOption {
	return func(s *LocalLeaser) {
		if path != "" {
			s.chromePath = path
		}
	}
}

// WithHeadless toggles headless mode
func WithHeadless(headless bool) LeaserOption {
	return func(s *LocalLeaser) {
		s.headless = headless
	}
}

// WithKillOld makes Cleanup kill every chrome process on the host
func WithKillOld() LeaserOption {
	return func(s *LocalLeaser) {
		s.killOld = true
	}
}

// NewLocalLeaser for headless chrome found at the default location
func NewLocalLeaser(opts ...LeaserOption) *LocalLeaser {
	chrome, tmp := FindChrome()
	s := &LocalLeaser{
		browsers:   make(map[string]*gcd.Gcd),
		chromePath: chrome,
		tmp:        tmp,
		headless:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire starts a new browser and returns its debugger port
func (s *LocalLeaser) Acquire() (string, error) {
	b := gcd.NewChromeDebugger()
	b.DeleteProfileOnExit()

	profileDir, err := randProfile(s.tmp)
	if err != nil {
		return "", errors.Wrap(err, "creating profile")
	}
	port := randPort()

	b.AddFlags(s.flags())
	if err := b.StartProcess(s.chromePath, profileDir, port); err != nil {
		return "", errors.Wrap(err, "starting "+s.chromePath)
	}
	s.browserLock.Lock()
	s.browsers[port] = b
	s.browserLock.Unlock()

	log.Debug().Str("port", port).Str("profile", profileDir).Msg("browser started")
	return port, nil
}

func (s *LocalLeaser) flags() []string {
	flags := append([]string(nil), startupFlags...)
	if s.headless {
		flags = append(flags, "--headless")
	}
	return append(flags, "about:blank")
}

// Count of running browsers
func (s *LocalLeaser) Count() (string, error) {
	s.browserLock.RLock()
	count := len(s.browsers)
	s.browserLock.RUnlock()
	return strconv.Itoa(count), nil
}

// Return (and kill) the browser on port
func (s *LocalLeaser) Return(port string) error {
	s.browserLock.Lock()
	defer s.browserLock.Unlock()

	b, ok := s.browsers[port]
	if !ok {
		return ErrNotLeased
	}
	delete(s.browsers, port)
	if err := b.ExitProcess(); err != nil {
		return errors.Wrap(err, "exiting browser")
	}
	return nil
}

// Cleanup exits every browser we started and removes their profiles
func (s *LocalLeaser) Cleanup() (string, error) {
	s.browserLock.Lock()
	for port, b := range s.browsers {
		if err := b.ExitProcess(); err != nil {
			log.Warn().Err(err).Str("port", port).Msg("failed to exit browser")
		}
		delete(s.browsers, port)
	}
	s.browserLock.Unlock()

	if s.killOld {
		if err := KillOldProcesses(); err != nil {
			return "", err
		}
	}

	if err := RemoveTmpContents(s.tmp); err != nil {
		return "", err
	}
	return "ok", nil
}
