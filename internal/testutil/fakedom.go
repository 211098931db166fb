// Package testutil holds the shared fakes used by the upload and
// orchestrator tests: a scripted DOM and a mock launcher API server.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/contentflow/uploadflow/internal/browser"
	"github.com/contentflow/uploadflow/internal/config"
)

// FakeElement is a scripted page element. Text and attribute reads can be
// sequenced so progress polling sees a moving (or stuck) indicator.
type FakeElement struct {
	mu sync.Mutex

	VisibleFlag bool
	EnabledFlag bool
	TextValue   string
	Attrs       map[string]string

	// TextScript and AttrScript, when non-empty, serve successive reads;
	// the last entry repeats.
	TextScript []string
	AttrScript map[string][]string
	textCalls  int
	attrCalls  map[string]int

	ClickErr    error
	FillErr     error
	TypeErr     error
	SetFilesErr error
	HoverErr    error

	Clicks  int
	Hovers  int
	Fills   []string
	Typed   []string
	Pressed []string
	Files   []string

	CenterX float64
	CenterY float64
}

func NewFakeElement() *FakeElement {
	return &FakeElement{
		VisibleFlag: true,
		EnabledFlag: true,
		Attrs:       map[string]string{},
		CenterX:     100,
		CenterY:     100,
	}
}

func (e *FakeElement) Click(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ClickErr != nil {
		return e.ClickErr
	}
	e.Clicks++
	return nil
}

func (e *FakeElement) Hover(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.HoverErr != nil {
		return e.HoverErr
	}
	e.Hovers++
	return nil
}

func (e *FakeElement) Fill(ctx context.Context, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FillErr != nil {
		return e.FillErr
	}
	e.Fills = append(e.Fills, value)
	return nil
}

func (e *FakeElement) Type(ctx context.Context, text string, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.TypeErr != nil {
		return e.TypeErr
	}
	e.Typed = append(e.Typed, text)
	return nil
}

func (e *FakeElement) Press(ctx context.Context, keys string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Pressed = append(e.Pressed, keys)
	return nil
}

func (e *FakeElement) SetFiles(ctx context.Context, paths ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SetFilesErr != nil {
		return e.SetFilesErr
	}
	e.Files = append(e.Files, paths...)
	return nil
}

func (e *FakeElement) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.TextScript) > 0 {
		idx := e.textCalls
		if idx >= len(e.TextScript) {
			idx = len(e.TextScript) - 1
		}
		e.textCalls++
		return e.TextScript[idx], nil
	}
	return e.TextValue, nil
}

func (e *FakeElement) Attribute(ctx context.Context, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if script, ok := e.AttrScript[name]; ok && len(script) > 0 {
		if e.attrCalls == nil {
			e.attrCalls = map[string]int{}
		}
		idx := e.attrCalls[name]
		if idx >= len(script) {
			idx = len(script) - 1
		}
		e.attrCalls[name]++
		return script[idx], nil
	}
	return e.Attrs[name], nil
}

func (e *FakeElement) Visible(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.VisibleFlag, nil
}

func (e *FakeElement) Enabled(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.EnabledFlag, nil
}

func (e *FakeElement) Center(ctx context.Context) (float64, float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.CenterX, e.CenterY, nil
}

// FakeDOM is a scripted page. Elements are registered by selector value.
type FakeDOM struct {
	mu sync.Mutex

	CurrentURL  string
	NavigateErr error
	Navigations []string
	Elements    map[string]*FakeElement
	MouseMoves  []browser.Point
	EvalResults map[string]interface{}
	EvalErr     error
	Evals       []string
}

func NewFakeDOM() *FakeDOM {
	return &FakeDOM{
		Elements:    map[string]*FakeElement{},
		EvalResults: map[string]interface{}{},
	}
}

// Register wires an element to a selector value so any strategy using
// that value resolves to it.
func (d *FakeDOM) Register(selectorValue string, el *FakeElement) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Elements[selectorValue] = el
}

func (d *FakeDOM) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Navigations = append(d.Navigations, url)
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	d.CurrentURL = url
	return nil
}

func (d *FakeDOM) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CurrentURL
}

func (d *FakeDOM) Query(sel config.Selector) browser.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.Elements[sel.Value]; ok {
		return el
	}
	return &FakeElement{VisibleFlag: false}
}

func (d *FakeDOM) Evaluate(ctx context.Context, script string, arg interface{}) (interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Evals = append(d.Evals, script)
	if d.EvalErr != nil {
		return nil, d.EvalErr
	}
	if result, ok := d.EvalResults[script]; ok {
		return result, nil
	}
	return nil, nil
}

func (d *FakeDOM) MoveMouse(ctx context.Context, x, y float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.MouseMoves = append(d.MouseMoves, browser.Point{X: x, Y: y})
	return nil
}

// NavigatedTo reports whether any navigation hit the given URL.
func (d *FakeDOM) NavigatedTo(url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.Navigations {
		if u == url {
			return true
		}
	}
	return false
}

var _ browser.DOM = (*FakeDOM)(nil)
var _ browser.Element = (*FakeElement)(nil)

// ScriptedProgress builds a text script counting up to 100% in the given
// increments, e.g. ScriptedProgress(25, 50, 75, 100).
func ScriptedProgress(percents ...int) []string {
	script := make([]string, 0, len(percents))
	for _, p := range percents {
		script = append(script, fmt.Sprintf("%d%%", p))
	}
	return script
}
