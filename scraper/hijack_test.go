package scraper

import (
	"testing"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/pagescrape/models"
)

func TestIsAdDomain(t *testing.T) {
	tests := map[string]bool{
		"doubleclick.net":                true,
		"pagead2.googlesyndication.com":  true,
		"WWW.GOOGLE-ANALYTICS.COM":       true,
		"example.com":                    false,
		"notdoubleclick.net":             false,
		"":                               false,
	}
	for host, want := range tests {
		assert.Equal(t, want, isAdDomain(host), host)
	}
}

func TestBlockRules(t *testing.T) {
	rules := newBlockRules([]string{"Image", "Font", "Bogus"}, true)
	assert.False(t, rules.empty())
	assert.True(t, rules.blocks(proto.NetworkResourceTypeImage, "https://example.com/a.png"))
	assert.True(t, rules.blocks(proto.NetworkResourceTypeFont, "https://example.com/a.woff"))
	assert.False(t, rules.blocks(proto.NetworkResourceTypeScript, "https://example.com/app.js"))
	assert.True(t, rules.blocks(proto.NetworkResourceTypeScript, "https://securepubads.doubleclick.net/tag.js"))

	assert.True(t, newBlockRules(nil, false).empty())
}

func TestResourceTypesMatchModels(t *testing.T) {
	for _, name := range models.ResourceTypes {
		_, ok := resourceTypes[name]
		assert.True(t, ok, name)
	}
	assert.Len(t, resourceTypes, len(models.ResourceTypes))
}

func TestMergeBlocked(t *testing.T) {
	assert.Equal(t, []string{"Image"}, mergeBlocked([]string{"Image"}, nil))
	assert.Equal(t, []string{"Image", "Font"}, mergeBlocked([]string{"Image"}, []string{"Font"}))
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		name string
		want input.Key
	}{
		{"Enter", input.Enter},
		{"enter", input.Enter},
		{"ArrowDown", input.ArrowDown},
		{"Tab", input.Tab},
		{"Escape", input.Escape},
		{"a", input.Key('a')},
		{"7", input.Key('7')},
	}
	for _, tt := range tests {
		got, err := parseKey(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	for _, bad := range []string{"", "Hyper", "é", "ab"} {
		_, err := parseKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestToHeadersMap(t *testing.T) {
	m := toHeadersMap(map[string]string{"Accept-Language": "de-DE"})
	require.Len(t, m, 1)
	assert.Equal(t, "de-DE", m["Accept-Language"].Str())
}
