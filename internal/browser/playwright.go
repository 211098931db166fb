package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/contentflow/uploadflow/internal/config"
)

// playwrightDOM adapts a playwright page to the DOM interface. Playwright
// calls carry their own timeouts; the context is accepted for interface
// symmetry with the fakes used in tests.
type playwrightDOM struct {
	page       playwright.Page
	navTimeout time.Duration
}

func NewPlaywrightDOM(page playwright.Page, navTimeout time.Duration) DOM {
	return &playwrightDOM{
		page:       page,
		navTimeout: navTimeout,
	}
}

func (d *playwrightDOM) Navigate(ctx context.Context, url string) error {
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(d.navTimeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (d *playwrightDOM) URL() string {
	return d.page.URL()
}

func (d *playwrightDOM) Query(sel config.Selector) Element {
	var loc playwright.Locator
	switch sel.Kind {
	case config.SelectorXPath:
		loc = d.page.Locator("xpath=" + sel.Value)
	case config.SelectorText:
		loc = d.page.GetByText(sel.Value, playwright.PageGetByTextOptions{
			Exact: playwright.Bool(sel.Exact),
		})
	case config.SelectorRole:
		opts := playwright.PageGetByRoleOptions{}
		if sel.Name != "" {
			opts.Name = sel.Name
		}
		loc = d.page.GetByRole(playwright.AriaRole(sel.Value), opts)
	default:
		loc = d.page.Locator(sel.Value)
	}
	return &playwrightElement{loc: loc.First()}
}

func (d *playwrightDOM) Evaluate(ctx context.Context, script string, arg interface{}) (interface{}, error) {
	if arg == nil {
		return d.page.Evaluate(script)
	}
	return d.page.Evaluate(script, arg)
}

func (d *playwrightDOM) MoveMouse(ctx context.Context, x, y float64) error {
	return d.page.Mouse().Move(x, y)
}

type playwrightElement struct {
	loc playwright.Locator
}

func (e *playwrightElement) Click(ctx context.Context) error {
	return e.loc.Click()
}

func (e *playwrightElement) Hover(ctx context.Context) error {
	return e.loc.Hover()
}

func (e *playwrightElement) Fill(ctx context.Context, value string) error {
	return e.loc.Fill(value)
}

func (e *playwrightElement) Type(ctx context.Context, text string, delay time.Duration) error {
	return e.loc.Type(text, playwright.LocatorTypeOptions{
		Delay: playwright.Float(float64(delay.Milliseconds())),
	})
}

func (e *playwrightElement) Press(ctx context.Context, keys string) error {
	return e.loc.Press(keys)
}

func (e *playwrightElement) SetFiles(ctx context.Context, paths ...string) error {
	return e.loc.SetInputFiles(paths)
}

func (e *playwrightElement) Text(ctx context.Context) (string, error) {
	return e.loc.TextContent()
}

func (e *playwrightElement) Attribute(ctx context.Context, name string) (string, error) {
	return e.loc.GetAttribute(name)
}

func (e *playwrightElement) Visible(ctx context.Context) (bool, error) {
	return e.loc.IsVisible()
}

func (e *playwrightElement) Enabled(ctx context.Context) (bool, error) {
	return e.loc.IsEnabled()
}

func (e *playwrightElement) Center(ctx context.Context) (float64, float64, error) {
	box, err := e.loc.BoundingBox()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read bounding box: %w", err)
	}
	if box == nil {
		return 0, 0, fmt.Errorf("element has no bounding box")
	}
	return box.X + box.Width/2, box.Y + box.Height/2, nil
}
