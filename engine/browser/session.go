package browser

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/wirepair/gcd"
)

// Session is a leased browser with one open tab
type Session struct {
	leaser LeaserService
	port   string
	g      *gcd.Gcd
	tab    *Tab
}

// Open leases a browser, connects to it and opens a tab
func Open(ctx context.Context, leaser LeaserService) (*Session, error) {
	port, err := leaser.Acquire()
	if err != nil {
		return nil, errors.Wrap(err, "acquiring browser")
	}

	g := gcd.NewChromeDebugger()
	if err := g.ConnectToInstance("localhost", port); err != nil {
		leaser.Return(port)
		return nil, errors.Wrap(err, "connecting to browser on port "+port)
	}

	tab, err := NewTab(ctx, g)
	if err != nil {
		leaser.Return(port)
		return nil, err
	}

	log.Ctx(ctx).Info().Str("port", port).Int64("tab_id", tab.ID()).Msg("browser session opened")
	return &Session{leaser: leaser, port: port, g: g, tab: tab}, nil
}

// Tab of the session
func (s *Session) Tab() *Tab {
	return s.tab
}

// Port of the leased browser
func (s *Session) Port() string {
	return s.port
}

// Close the tab and return the browser to the leaser
func (s *Session) Close(ctx context.Context) error {
	tabErr := s.tab.Close(ctx)
	if err := s.leaser.Return(s.port); err != nil && !errors.Is(err, ErrNotLeased) {
		return errors.Wrap(err, "returning browser")
	}
	return tabErr
}
