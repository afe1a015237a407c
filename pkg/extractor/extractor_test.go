package extractor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttscraper/pkg/logger"
)

func ids(items []RawItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item["id"].(type) {
		case string:
			out = append(out, v)
		case json.Number:
			out = append(out, v.String())
		}
	}
	return out
}

func TestExtractStructuredScript(t *testing.T) {
	tests := []struct {
		name string
		html string
		want []string
	}{
		{
			name: "pageProps items",
			html: `<html><script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"items":[{"id":"3"},{"id":"1"},{"id":"2"}]}}}</script></html>`,
			want: []string{"3", "1", "2"},
		},
		{
			name: "pageProps awemeList",
			html: `<script id="__NEXT_DATA__">{"props":{"pageProps":{"awemeList":[{"id":"a"}]}}}</script>`,
			want: []string{"a"},
		},
		{
			name: "initialProps items",
			html: `<script id="__NEXT_DATA__">{"props":{"initialProps":{"items":[{"id":"i1"}]}}}</script>`,
			want: []string{"i1"},
		},
		{
			name: "initialProps awemeList",
			html: `<script id="__NEXT_DATA__">{"props":{"initialProps":{"awemeList":[{"id":"w1"},{"id":"w2"}]}}}</script>`,
			want: []string{"w1", "w2"},
		},
		{
			name: "application/json type is case insensitive",
			html: `<script type="Application/JSON">{"props":{"pageProps":{"items":[{"id":"x"}]}}}</script>`,
			want: []string{"x"},
		},
		{
			name: "ItemModule anywhere keeps document order",
			html: `<script id="__NEXT_DATA__">{"props":{"state":{"deep":{"ItemModule":{"9":{"id":"9"},"1":{"id":"1"},"5":{"id":"5"}}}}}}</script>`,
			want: []string{"9", "1", "5"},
		},
		{
			name: "payload with surrounding junk",
			html: `<script id="__NEXT_DATA__">/* state */ {"props":{"pageProps":{"items":[{"id":"j"}]}}};</script>`,
			want: []string{"j"},
		},
		{
			name: "items array inside unparseable payload",
			html: `<script id="__NEXT_DATA__">broken {"x": nope, "items": [{"id":"k","desc":"a } b"}], tail</script>`,
			want: []string{"k"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, name := New(logger.NewNopLogger()).ExtractNamed(tt.html)
			assert.Equal(t, tt.want, ids(items))
			assert.Equal(t, "next_data", name)
		})
	}
}

func TestExtractSigiState(t *testing.T) {
	tests := []struct {
		name string
		html string
		want []string
	}{
		{
			name: "single quoted marker",
			html: `<script>window['SIGI_STATE']={"ItemModule":{"42":{"id":"42","createTime":1700000000,"desc":"hi"}}}</script>`,
			want: []string{"42"},
		},
		{
			name: "double quoted marker with whitespace",
			html: "<script>window[\"SIGI_STATE\"] \n = \t{\"ItemModule\":{\"b\":{\"id\":\"b\"},\"a\":{\"id\":\"a\"}}};</script>",
			want: []string{"b", "a"},
		},
		{
			name: "dotted marker nested one level",
			html: `<script>window.SIGI_STATE = {"app":{"ItemModule":{"n":{"id":"n"}}}};</script>`,
			want: []string{"n"},
		},
		{
			name: "braces and escaped quotes inside strings",
			html: `<script>window.SIGI_STATE={"ItemModule":{"s":{"id":"s","desc":"say \"}\" and { twice"}}};window.other={}</script>`,
			want: []string{"s"},
		},
		{
			name: "later occurrence after an unusable one",
			html: `<script>window.SIGI_STATE = {"ItemModule":{}};</script><script>window.SIGI_STATE = {"ItemModule":{"z":{"id":"z"}}};</script>`,
			want: []string{"z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, name := New(logger.NewNopLogger()).ExtractNamed(tt.html)
			assert.Equal(t, tt.want, ids(items))
			assert.Equal(t, "sigi_state", name)
		})
	}
}

func TestExtractGenericScript(t *testing.T) {
	tests := []struct {
		name string
		html string
		want []string
	}{
		{
			name: "awemeList",
			html: `<script>{"awemeList":[{"id":"g1"},{"id":"g2"}]}</script>`,
			want: []string{"g1", "g2"},
		},
		{
			name: "items",
			html: `<script>  {"items":[{"id":"g3"}]}  </script>`,
			want: []string{"g3"},
		},
		{
			name: "ItemModule",
			html: `<script>var x = 1;</script><script>{"ItemModule":{"q":{"id":"q"}}}</script>`,
			want: []string{"q"},
		},
		{
			name: "empty awemeList falls through to items",
			html: `<script>{"awemeList":[],"items":[{"id":"g4"}]}</script>`,
			want: []string{"g4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, name := New(logger.NewNopLogger()).ExtractNamed(tt.html)
			assert.Equal(t, tt.want, ids(items))
			assert.Equal(t, "generic_script", name)
		})
	}
}

func TestExtractPriority(t *testing.T) {
	html := `<script>window.SIGI_STATE={"ItemModule":{"s":{"id":"sigi"}}}</script>` +
		`<script id="__NEXT_DATA__">{"props":{"pageProps":{"items":[{"id":"next"}]}}}</script>`

	items, name := New(logger.NewNopLogger()).ExtractNamed(html)
	assert.Equal(t, []string{"next"}, ids(items))
	assert.Equal(t, "next_data", name)
}

func TestExtractNothingFound(t *testing.T) {
	inputs := []string{
		"",
		"<html><body>nothing here</body></html>",
		"garbage {{{ [[[ \"unterminated",
		`<script id="__NEXT_DATA__">{not json at all</script>`,
		`<script>window.SIGI_STATE = {"ItemModule": {"a": {"id": </script>`,
		`<script>{"items":["just","strings"]}</script>`,
	}

	for _, input := range inputs {
		assert.NotPanics(t, func() {
			items, name := New(logger.NewNopLogger()).ExtractNamed(input)
			require.NotNil(t, items)
			assert.Empty(t, items)
			assert.Empty(t, name)
		})
	}

	assert.NotNil(t, Extract(""))
}

func TestExtractPreservesNumbers(t *testing.T) {
	html := `<script id="__NEXT_DATA__">{"props":{"pageProps":{"items":[{"id":7234567890123456789,"createTime":1700000000}]}}}</script>`

	items := Extract(html)
	require.Len(t, items, 1)
	assert.Equal(t, json.Number("7234567890123456789"), items[0]["id"])
	assert.Equal(t, json.Number("1700000000"), items[0]["createTime"])
}

type panicStrategy struct{}

func (panicStrategy) Name() string { return "panics" }

func (panicStrategy) Extract(*Page) ([]RawItem, bool) {
	panic("boom")
}

func TestExtractRecoversFromPanickingStrategy(t *testing.T) {
	log := logger.NewTestLogger()
	e := New(log, panicStrategy{}, GenericScriptStrategy{})

	items, name := e.ExtractNamed(`<script>{"items":[{"id":"after"}]}</script>`)
	assert.Equal(t, []string{"after"}, ids(items))
	assert.Equal(t, "generic_script", name)
	assert.True(t, log.HasMessage("extraction strategy panicked"))
}

func TestBalancedAt(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		start int
		want  string
		ok    bool
	}{
		{"object", `x{"a":{"b":1}}y`, 1, `{"a":{"b":1}}`, true},
		{"array", `[1,[2,3],4] tail`, 0, `[1,[2,3],4]`, true},
		{"brace in string", `{"a":"}"}`, 0, `{"a":"}"}`, true},
		{"escaped quote", `{"a":"\"}"}`, 0, `{"a":"\"}"}`, true},
		{"escaped backslash", `{"a":"\\"}`, 0, `{"a":"\\"}`, true},
		{"unterminated", `{"a":1`, 0, "", false},
		{"not an opener", `abc`, 0, "", false},
		{"out of range", `{}`, 5, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := balancedAt(tt.text, tt.start)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
