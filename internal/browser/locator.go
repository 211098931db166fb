package browser

import (
	"context"
	"fmt"

	"github.com/contentflow/uploadflow/internal/config"
	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/pkg/logger"
)

// Chain tries an ordered list of locator strategies and stops at the first
// one that resolves to a visible element.
type Chain struct {
	name      string
	selectors []config.Selector
	log       logger.Logger
}

func NewChain(name string, selectors []config.Selector, log logger.Logger) *Chain {
	return &Chain{
		name:      name,
		selectors: selectors,
		log:       log,
	}
}

func (c *Chain) Name() string {
	return c.name
}

// Find returns the first visible match along with the selector that
// produced it.
func (c *Chain) Find(ctx context.Context, dom DOM) (Element, config.Selector, error) {
	for _, sel := range c.selectors {
		el := dom.Query(sel)
		visible, err := el.Visible(ctx)
		if err != nil {
			c.log.Debug("Locator strategy errored",
				logger.Field{Key: "chain", Value: c.name},
				logger.Field{Key: "kind", Value: string(sel.Kind)},
				logger.Field{Key: "value", Value: sel.Value},
				logger.Field{Key: "error", Value: err.Error()})
			continue
		}
		if visible {
			return el, sel, nil
		}
	}
	return nil, config.Selector{}, fmt.Errorf("%w: %s (%d strategies tried)",
		models.ErrElementNotFound, c.name, len(c.selectors))
}

// FindAll returns every visible match across the chain, one per strategy.
// Used for the overlay dismissal pass, where each strategy may hit a
// different dialog.
func (c *Chain) FindAll(ctx context.Context, dom DOM) []Element {
	var found []Element
	for _, sel := range c.selectors {
		el := dom.Query(sel)
		visible, err := el.Visible(ctx)
		if err != nil || !visible {
			continue
		}
		found = append(found, el)
	}
	return found
}
