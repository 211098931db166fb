package browser

import (
	"github.com/playwright-community/playwright-go"
)

// StealthInjector installs init scripts that mask the most common
// automation fingerprints. The antidetect browser handles the heavy
// fingerprinting; these cover what leaks through the CDP attach itself.
type StealthInjector struct{}

func NewStealthInjector() *StealthInjector {
	return &StealthInjector{}
}

func (s *StealthInjector) Apply(page playwright.Page) error {
	if err := s.disableWebdriverFlag(page); err != nil {
		return err
	}
	return s.overrideNavigatorProperties(page)
}

func (s *StealthInjector) disableWebdriverFlag(page playwright.Page) error {
	script := `
		Object.defineProperty(navigator, 'webdriver', {
			get: () => undefined
		});

		const originalQuery = window.navigator.permissions.query;
		window.navigator.permissions.query = (parameters) => {
			if (parameters.name === 'notifications') {
				return Promise.resolve({ state: Notification.permission });
			}
			return originalQuery(parameters);
		};
	`
	return page.AddInitScript(playwright.Script{Content: &script})
}

func (s *StealthInjector) overrideNavigatorProperties(page playwright.Page) error {
	script := `
		Object.defineProperty(navigator, 'languages', {
			get: () => ['en-US', 'en']
		});

		window.chrome = window.chrome || { runtime: {} };
	`
	return page.AddInitScript(playwright.Script{Content: &script})
}
