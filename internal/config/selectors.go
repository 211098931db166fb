package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type SelectorKind string

const (
	SelectorCSS   SelectorKind = "css"
	SelectorXPath SelectorKind = "xpath"
	SelectorText  SelectorKind = "text"
	SelectorRole  SelectorKind = "role"
)

// Selector is one locator strategy entry. Strategies are tried in catalog
// order; the first visible match wins.
type Selector struct {
	Kind  SelectorKind `yaml:"kind"`
	Value string       `yaml:"value"`
	// Name qualifies role selectors (accessible name) and is the substring
	// for non-exact text selectors.
	Name  string `yaml:"name,omitempty"`
	Exact bool   `yaml:"exact,omitempty"`
}

// SelectorCatalog holds the per-concern fallback chains used when driving
// the upload page. The page markup changes often, so the chains live in a
// YAML file rather than in code.
type SelectorCatalog struct {
	OverlayDismiss    []Selector `yaml:"overlay_dismiss"`
	FileInput         []Selector `yaml:"file_input"`
	TitleField        []Selector `yaml:"title_field"`
	ProgressIndicator []Selector `yaml:"progress_indicator"`
	PublishButton     []Selector `yaml:"publish_button"`
}

// LoadSelectors reads the catalog file. A missing file yields the built-in
// defaults; a malformed file is an error.
func LoadSelectors(path string) (*SelectorCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSelectors(), nil
		}
		return nil, fmt.Errorf("failed to read selector catalog: %w", err)
	}

	var catalog SelectorCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse selector catalog: %w", err)
	}

	defaults := DefaultSelectors()
	if len(catalog.OverlayDismiss) == 0 {
		catalog.OverlayDismiss = defaults.OverlayDismiss
	}
	if len(catalog.FileInput) == 0 {
		catalog.FileInput = defaults.FileInput
	}
	if len(catalog.TitleField) == 0 {
		catalog.TitleField = defaults.TitleField
	}
	if len(catalog.ProgressIndicator) == 0 {
		catalog.ProgressIndicator = defaults.ProgressIndicator
	}
	if len(catalog.PublishButton) == 0 {
		catalog.PublishButton = defaults.PublishButton
	}
	return &catalog, nil
}

func DefaultSelectors() *SelectorCatalog {
	return &SelectorCatalog{
		OverlayDismiss: []Selector{
			{Kind: SelectorXPath, Value: "//div[@aria-label='Close']"},
			{Kind: SelectorXPath, Value: "//div[@role='dialog']//div[@aria-label='Not Now']"},
			{Kind: SelectorText, Value: "Not now"},
			{Kind: SelectorText, Value: "Dismiss"},
		},
		FileInput: []Selector{
			{Kind: SelectorCSS, Value: "input[type='file'][accept*='video']"},
			{Kind: SelectorCSS, Value: "input[type='file']"},
		},
		TitleField: []Selector{
			{Kind: SelectorCSS, Value: "div[role='textbox'][contenteditable='true']"},
			{Kind: SelectorCSS, Value: "textarea[placeholder*='escri']"},
			{Kind: SelectorXPath, Value: "//label[contains(.,'itle')]//input"},
		},
		ProgressIndicator: []Selector{
			{Kind: SelectorCSS, Value: "div[role='progressbar']"},
			{Kind: SelectorXPath, Value: "//span[contains(text(),'%')]"},
			{Kind: SelectorText, Value: "Upload complete"},
		},
		PublishButton: []Selector{
			{Kind: SelectorText, Value: "Publish", Exact: true},
			{Kind: SelectorText, Value: "Publish"},
			{Kind: SelectorRole, Value: "button", Name: "Publish"},
			{Kind: SelectorXPath, Value: "//div[@role='button'][.//span[contains(text(),'ublish')]]"},
		},
	}
}
