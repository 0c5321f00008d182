package driverk

import "context"

// ProtocolClient is the remote end we drive. It holds a single session and every
// call is a request/response round trip. Implementations return *StaleElementErr,
// *NoSuchWindowErr, *ProtocolErr or ErrSessionClosed on failure.
type ProtocolClient interface {
	// FindElements under scope, or the document root if scope is nil
	FindElements(ctx context.Context, sel Selector, scope *ElementHandle) ([]ElementHandle, error)
	// Attribute value, ok is false when the attribute is not present
	Attribute(ctx context.Context, h ElementHandle, name string) (string, bool, error)
	IsDisplayed(ctx context.Context, h ElementHandle) (bool, error)
	IsEnabled(ctx context.Context, h ElementHandle) (bool, error)
	// IsClickable is displayed, enabled and not obscured by another element
	IsClickable(ctx context.Context, h ElementHandle) (bool, error)
	Text(ctx context.Context, h ElementHandle) (string, error)
	ClassList(ctx context.Context, h ElementHandle) ([]string, error)
}

// Navigator loads pages, only the command line needs it
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}
