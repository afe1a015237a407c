package extractor

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"ttscraper/pkg/logger"
)

// RawItem is one post as found in the page, before normalization.
// Numbers are kept as json.Number.
type RawItem map[string]any

// Script is a <script> element's attributes and body
type Script struct {
	ID   string
	Type string
	Text string
}

// Page is the HTML handed to each strategy. Script elements are parsed once, on first use.
type Page struct {
	HTML string

	once    sync.Once
	scripts []Script
}

// NewPage wraps raw HTML
func NewPage(html string) *Page {
	return &Page{HTML: html}
}

// Scripts returns every <script> element in document order
func (p *Page) Scripts() []Script {
	p.once.Do(func() {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
		if err != nil {
			return
		}
		doc.Find("script").Each(func(i int, s *goquery.Selection) {
			id, _ := s.Attr("id")
			typ, _ := s.Attr("type")
			p.scripts = append(p.scripts, Script{ID: id, Type: typ, Text: s.Text()})
		})
	})
	return p.scripts
}

// Strategy locates post items in one flavour of embedded state
type Strategy interface {
	Name() string
	// Extract returns the items found and whether the strategy matched
	Extract(page *Page) ([]RawItem, bool)
}

// Extractor runs strategies in priority order; the first non-empty result wins
type Extractor struct {
	strategies []Strategy
	log        logger.Logger
}

// New creates an Extractor. Without strategies it uses DefaultStrategies.
func New(log logger.Logger, strategies ...Strategy) *Extractor {
	if log == nil {
		log = logger.GetLogger()
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Extractor{strategies: strategies, log: log}
}

// DefaultStrategies returns the structured script, global assignment and
// generic script strategies, in that order
func DefaultStrategies() []Strategy {
	return []Strategy{
		NextDataStrategy{},
		SigiStateStrategy{},
		GenericScriptStrategy{},
	}
}

// Extract returns the post items embedded in html, or an empty slice
func (e *Extractor) Extract(html string) []RawItem {
	items, _ := e.ExtractNamed(html)
	return items
}

// ExtractNamed is Extract that also reports which strategy matched.
// The name is empty when nothing matched.
func (e *Extractor) ExtractNamed(html string) ([]RawItem, string) {
	page := NewPage(html)

	for _, strategy := range e.strategies {
		items, err := e.run(strategy, page)
		if err != nil {
			e.log.WarnWithFields("extraction strategy panicked", map[string]interface{}{
				"strategy": strategy.Name(),
				"error":    err.Error(),
			})
			continue
		}
		if len(items) > 0 {
			e.log.DebugWithFields("extraction strategy matched", map[string]interface{}{
				"strategy": strategy.Name(),
				"items":    len(items),
			})
			return items, strategy.Name()
		}
	}

	return []RawItem{}, ""
}

func (e *Extractor) run(strategy Strategy, page *Page) (items []RawItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = fmt.Errorf("strategy %s: %v", strategy.Name(), r)
		}
	}()

	items, ok := strategy.Extract(page)
	if !ok {
		return nil, nil
	}
	return items, nil
}

var defaultExtractor = &Extractor{strategies: DefaultStrategies(), log: logger.NewNopLogger()}

// Extract runs the default strategies against html
func Extract(html string) []RawItem {
	return defaultExtractor.Extract(html)
}

// decodeItem decodes one JSON object. Non-objects are rejected.
func decodeItem(raw string) (RawItem, bool) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var item RawItem
	if err := dec.Decode(&item); err != nil || item == nil {
		return nil, false
	}
	return item, true
}

// arrayItems decodes the object elements of a JSON array in order
func arrayItems(arr gjson.Result) []RawItem {
	if !arr.IsArray() {
		return nil
	}

	var items []RawItem
	arr.ForEach(func(_, value gjson.Result) bool {
		if value.IsObject() {
			if item, ok := decodeItem(value.Raw); ok {
				items = append(items, item)
			}
		}
		return true
	})
	return items
}

// objectValues decodes the object values of a JSON object in document order
func objectValues(obj gjson.Result) []RawItem {
	if !obj.IsObject() {
		return nil
	}

	var items []RawItem
	obj.ForEach(func(_, value gjson.Result) bool {
		if value.IsObject() {
			if item, ok := decodeItem(value.Raw); ok {
				items = append(items, item)
			}
		}
		return true
	})
	return items
}

// findObjectKey searches depth first for key with an object value
func findObjectKey(node gjson.Result, key string) (gjson.Result, bool) {
	var found gjson.Result
	ok := false

	switch {
	case node.IsObject():
		node.ForEach(func(k, value gjson.Result) bool {
			if k.String() == key && value.IsObject() {
				found, ok = value, true
				return false
			}
			if value.IsObject() || value.IsArray() {
				if nested, hit := findObjectKey(value, key); hit {
					found, ok = nested, true
					return false
				}
			}
			return true
		})
	case node.IsArray():
		node.ForEach(func(_, value gjson.Result) bool {
			if nested, hit := findObjectKey(value, key); hit {
				found, ok = nested, true
				return false
			}
			return true
		})
	}

	return found, ok
}
