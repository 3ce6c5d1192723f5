package cachekey

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"fiscal-offline-go/config"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Table(t *testing.T) {
	g := NewGenerator(nil)

	requests := []struct {
		method string
		url    string
	}{
		{"GET", "/mf1/receipts?size=10&page=2"},
		{"GET", "/mf1/receipts/abc-123"},
		{"GET", "/mf2/merchants/m1/pems"},
		{"GET", "/mf2/merchants/m2/pems"},
		{"GET", "/pems"},
		{"GET", "/mf1/notifications"},
		{"GET", "/mf1/telemetry/t1"},
		{"POST", "/mf1/receipts"},
		{"DELETE", "/mf1/receipts/abc-123"},
		{"PUT", "/mf2/merchants/m1/pems/p9"},
		{"GET", "/mf1/unknown/1"},
	}

	var buf bytes.Buffer
	for _, r := range requests {
		key, err := g.Generate(r.url, nil)
		if err != nil {
			key = "-"
		}
		fmt.Fprintf(&buf, "%s %s key=%s cache=%t ttl=%s invalidate=%v\n",
			r.method, r.url, key, g.ShouldCache(r.method, r.url), g.TTL(r.url), g.InvalidationPatterns(r.url, r.method))
	}

	gold := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	gold.Assert(t, "keys", buf.Bytes())
}

func TestGenerator_ParseResource(t *testing.T) {
	g := NewGenerator(nil)

	res, ok := g.ParseResource("https://api.example.com/MF1/Receipts/X-1/details?full=true")
	require.True(t, ok)
	assert.Equal(t, "receipt", res.Tag)
	assert.Equal(t, "X-1", res.ID())
	assert.Equal(t, []string{"X-1", "details"}, res.Remainder)
	assert.False(t, res.IsList())
	assert.Equal(t, "true", res.Query.Get("full"))

	res, ok = g.ParseResource("/mf1/cash-registers")
	require.True(t, ok)
	assert.Equal(t, "cash-register", res.Tag)
	assert.True(t, res.IsList())

	_, ok = g.ParseResource("/mf1/unknown")
	assert.False(t, ok)
}

func TestGenerator_Generate_CanonicalQuery(t *testing.T) {
	g := NewGenerator(nil)

	a, err := g.Generate("/mf1/receipts?b=2&a=1", nil)
	require.NoError(t, err)
	b, err := g.Generate("/mf1/receipts?a=1&b=2", nil)
	require.NoError(t, err)
	c, err := g.Generate("/mf1/receipts", map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)

	assert.Equal(t, "receipt:list@/mf1?a=1&b=2", a)
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)

	_, err = g.Generate("/nothing/here", nil)
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestGenerator_Generate_ScopedCollections(t *testing.T) {
	g := NewGenerator(nil)

	m1, err := g.Generate("/mf2/merchants/m1/pems", nil)
	require.NoError(t, err)
	m2, err := g.Generate("/mf2/merchants/m2/pems", nil)
	require.NoError(t, err)
	top, err := g.Generate("/pems", nil)
	require.NoError(t, err)
	v1, err := g.Generate("/mf1/receipts", nil)
	require.NoError(t, err)
	v2, err := g.Generate("/mf2/receipts", nil)
	require.NoError(t, err)

	assert.Equal(t, "pem:list@/mf2/merchant/m1", m1)
	assert.NotEqual(t, m1, m2)
	assert.NotEqual(t, m1, top)
	assert.NotEqual(t, v1, v2)

	cased, err := g.Generate("/mf2/Merchants/m1/pems", nil)
	require.NoError(t, err)
	assert.Equal(t, m1, cased, "resource segments in the scope are case-folded")
}

func TestGenerator_ShouldCache(t *testing.T) {
	g := NewGenerator(nil)

	assert.True(t, g.ShouldCache("GET", "/mf1/receipts"))
	assert.True(t, g.ShouldCache("get", "/mf1/receipts/1"))
	assert.False(t, g.ShouldCache("POST", "/mf1/receipts"))
	assert.False(t, g.ShouldCache("GET", "/mf1/notifications"), "notification lists are not cached")
	assert.True(t, g.ShouldCache("GET", "/mf1/notifications/n1"))
	assert.False(t, g.ShouldCache("GET", "/mf1/telemetry"))
	assert.False(t, g.ShouldCache("GET", "/mf1/unknown"))
}

func TestGenerator_ConfiguredResources(t *testing.T) {
	g := NewGenerator(MergeResources(map[string]config.CacheResourceConfig{
		"receipt": {TTL: time.Minute, CacheList: false, CacheItem: true},
	}))

	assert.Equal(t, time.Minute, g.TTL("/mf1/receipts/1"))
	assert.False(t, g.ShouldCache("GET", "/mf1/receipts"))
	assert.True(t, g.ShouldCache("GET", "/mf1/receipts/1"))
	assert.Equal(t, 30*time.Minute, g.TTL("/mf1/merchants"), "other resources keep their defaults")
	assert.Equal(t, DefaultTTL, g.TTL("/mf1/unknown"))
}

func TestGenerator_InvalidationPatterns(t *testing.T) {
	g := NewGenerator(nil)

	assert.Nil(t, g.InvalidationPatterns("/mf1/receipts", "GET"))
	assert.Nil(t, g.InvalidationPatterns("/mf1/unknown", "POST"))

	assert.Equal(t,
		[]string{"merchant:list", "merchant:item:/m1"},
		g.InvalidationPatterns("/mf2/merchants/m1", "PATCH"))

	assert.Equal(t,
		[]string{"receipt:list", "receipt:item:/r1", "daily-report:list", "journal:list"},
		g.InvalidationPatterns("/mf1/receipts/r1/return", "POST"))
}
