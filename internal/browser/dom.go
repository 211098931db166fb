package browser

import (
	"context"
	"time"

	"github.com/contentflow/uploadflow/internal/config"
)

// Element is one located page element. Implementations resolve lazily, so
// a query for a missing element only fails when a method is called.
type Element interface {
	Click(ctx context.Context) error
	Hover(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Type(ctx context.Context, text string, delay time.Duration) error
	Press(ctx context.Context, keys string) error
	SetFiles(ctx context.Context, paths ...string) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	Visible(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	Center(ctx context.Context) (x, y float64, err error)
}

// DOM is the narrow surface of a driven browser page that the upload flow
// needs. The production implementation wraps a playwright page; tests use
// a scripted fake.
type DOM interface {
	Navigate(ctx context.Context, url string) error
	URL() string
	Query(sel config.Selector) Element
	Evaluate(ctx context.Context, script string, arg interface{}) (interface{}, error)
	MoveMouse(ctx context.Context, x, y float64) error
}
