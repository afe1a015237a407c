package extractor

import (
	"strings"

	"github.com/tidwall/gjson"
)

const (
	nextDataID      = "__NEXT_DATA__"
	itemModuleKey   = "ItemModule"
	jsonContentType = "application/json"
)

// nextDataPaths are tried in order inside a structured script payload
var nextDataPaths = []string{
	"props.pageProps.items",
	"props.pageProps.awemeList",
	"props.initialProps.items",
	"props.initialProps.awemeList",
}

// sigiMarkers are the global assignments that carry the SIGI state object
var sigiMarkers = []string{
	`window["SIGI_STATE"]`,
	`window['SIGI_STATE']`,
	`window.SIGI_STATE`,
}

// NextDataStrategy reads the __NEXT_DATA__ script or any application/json script
type NextDataStrategy struct{}

func (NextDataStrategy) Name() string { return "next_data" }

func (NextDataStrategy) Extract(page *Page) ([]RawItem, bool) {
	for _, script := range page.Scripts() {
		if script.ID != nextDataID && !strings.EqualFold(strings.TrimSpace(script.Type), jsonContentType) {
			continue
		}

		text := strings.TrimSpace(script.Text)
		if items := structuredItems(text); len(items) > 0 {
			return items, true
		}
	}
	return nil, false
}

func structuredItems(text string) []RawItem {
	doc := text
	if !gjson.Valid(doc) {
		trimmed, ok := outerBraces(text)
		if ok && gjson.Valid(trimmed) {
			doc = trimmed
		} else {
			doc = ""
		}
	}

	if doc != "" {
		for _, path := range nextDataPaths {
			if items := arrayItems(gjson.Get(doc, path)); len(items) > 0 {
				return items
			}
		}

		if module, ok := findObjectKey(gjson.Parse(doc), itemModuleKey); ok {
			if items := objectValues(module); len(items) > 0 {
				return items
			}
		}
	}

	// last resort for payloads that do not parse as a whole
	for _, arr := range keyedArrays(text, "items") {
		if !gjson.Valid(arr) {
			continue
		}
		if items := arrayItems(gjson.Parse(arr)); len(items) > 0 {
			return items
		}
	}

	return nil
}

// SigiStateStrategy reads the object assigned to window.SIGI_STATE
type SigiStateStrategy struct{}

func (SigiStateStrategy) Name() string { return "sigi_state" }

func (SigiStateStrategy) Extract(page *Page) ([]RawItem, bool) {
	for _, marker := range sigiMarkers {
		for _, obj := range assignedObjects(page.HTML, marker) {
			if !gjson.Valid(obj) {
				continue
			}
			if items := sigiItems(gjson.Parse(obj)); len(items) > 0 {
				return items, true
			}
		}
	}
	return nil, false
}

// sigiItems looks for ItemModule at the top level, then one level down
func sigiItems(state gjson.Result) []RawItem {
	if items := objectValues(state.Get(itemModuleKey)); len(items) > 0 {
		return items
	}

	var items []RawItem
	state.ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		items = objectValues(value.Get(itemModuleKey))
		return len(items) == 0
	})
	return items
}

// GenericScriptStrategy inspects every script body that is a bare JSON object
type GenericScriptStrategy struct{}

func (GenericScriptStrategy) Name() string { return "generic_script" }

func (GenericScriptStrategy) Extract(page *Page) ([]RawItem, bool) {
	for _, script := range page.Scripts() {
		text := strings.TrimSpace(script.Text)
		if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") || !gjson.Valid(text) {
			continue
		}

		doc := gjson.Parse(text)
		if items := arrayItems(doc.Get("awemeList")); len(items) > 0 {
			return items, true
		}
		if items := arrayItems(doc.Get("items")); len(items) > 0 {
			return items, true
		}
		if items := objectValues(doc.Get(itemModuleKey)); len(items) > 0 {
			return items, true
		}
	}
	return nil, false
}
