// Package cachekey leitet aus URL und Methode einer Anfrage Cache-Schlüssel,
// Ressourcen-Tags, Gültigkeitsdauer und Invalidierungsmuster ab. Alle
// Schlüssel des Caches entstehen hier, damit Schreib- und Invalidierungspfad
// dasselbe Format verwenden.
package cachekey

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fiscal-offline-go/config"

	"golang.org/x/text/cases"
)

// ErrUnknownResource wird geliefert, wenn der Pfad keine bekannte Ressource enthält
var ErrUnknownResource = errors.New("unknown resource")

// Resource ist das Ergebnis der Pfadanalyse
type Resource struct {
	Tag       string
	Segment   string   // Pfadsegment, das die Ressource benannt hat
	Scope     []string // Pfad vor dem Ressourcensegment, Ressourcen als Tag
	Remainder []string // Pfad nach dem Ressourcensegment (ID, Unterpfade)
	Parents   []Parent // übergeordnete Ressourcen verschachtelter Pfade
	Query     url.Values
}

// Parent ist eine übergeordnete Ressource mit ID, z.B. /merchants/{id}/pems
type Parent struct {
	Tag string
	ID  string
}

// IsList meldet, ob die Anfrage eine Sammlung adressiert
func (r Resource) IsList() bool {
	return len(r.Remainder) == 0
}

// ID liefert das erste Segment nach der Ressource
func (r Resource) ID() string {
	if len(r.Remainder) == 0 {
		return ""
	}
	return r.Remainder[0]
}

// Generator kennt die Cache-Politik aller Ressourcen
type Generator struct {
	resources map[string]config.CacheResourceConfig
}

// NewGenerator erstellt einen Generator. Eine leere Map verwendet die eingebaute Tabelle.
func NewGenerator(resources map[string]config.CacheResourceConfig) *Generator {
	if len(resources) == 0 {
		resources = DefaultResources()
	}
	copied := make(map[string]config.CacheResourceConfig, len(resources))
	for k, v := range resources {
		copied[k] = v
	}
	return &Generator{resources: copied}
}

// ParseResource ordnet die URL einer Ressource zu. Bei verschachtelten Pfaden
// gewinnt das letzte bekannte Segment.
func (g *Generator) ParseResource(rawURL string) (Resource, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Resource{}, false
	}

	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	idx := -1
	var matches []int
	for i, s := range segments {
		if _, ok := resourceSegments[cases.Fold().String(s)]; ok {
			matches = append(matches, i)
			idx = i
		}
	}
	if idx < 0 {
		return Resource{}, false
	}

	res := Resource{
		Segment:   segments[idx],
		Tag:       resourceSegments[cases.Fold().String(segments[idx])],
		Remainder: segments[idx+1:],
		Query:     u.Query(),
	}
	for _, s := range segments[:idx] {
		if tag, ok := resourceSegments[cases.Fold().String(s)]; ok {
			s = tag
		}
		res.Scope = append(res.Scope, s)
	}
	for _, i := range matches[:len(matches)-1] {
		if i+1 < len(segments) {
			res.Parents = append(res.Parents, Parent{
				Tag: resourceSegments[cases.Fold().String(segments[i])],
				ID:  segments[i+1],
			})
		}
	}
	return res, true
}

// Generate bildet den Cache-Schlüssel. Der Pfad vor der Ressource (API-Version,
// übergeordnete Ressourcen) folgt nach "@", sodass /merchants/m1/pems und
// /merchants/m2/pems verschiedene Schlüssel erhalten. Query-Parameter der URL
// und params werden zusammengeführt und nach Schlüssel sortiert kodiert, sodass
// gleichwertige Anfragen denselben Schlüssel ergeben.
func (g *Generator) Generate(rawURL string, params map[string]string) (string, error) {
	res, ok := g.ParseResource(rawURL)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownResource, rawURL)
	}

	query := url.Values{}
	for k, vs := range res.Query {
		query[k] = append([]string(nil), vs...)
	}
	for k, v := range params {
		query.Set(k, v)
	}

	var key string
	if res.IsList() {
		key = ListKey(res.Tag)
	} else {
		key = ItemKey(res.Tag, strings.Join(res.Remainder, "/"))
	}
	if len(res.Scope) > 0 {
		key += ScopeSeparator + "/" + strings.Join(res.Scope, "/")
	}
	if len(query) > 0 {
		key += "?" + query.Encode()
	}
	return key, nil
}

// ShouldCache meldet, ob die Antwort einer Anfrage zwischengespeichert werden darf
func (g *Generator) ShouldCache(method, rawURL string) bool {
	if !strings.EqualFold(method, http.MethodGet) {
		return false
	}
	res, ok := g.ParseResource(rawURL)
	if !ok {
		return false
	}
	rc, ok := g.resources[res.Tag]
	if !ok {
		return false
	}
	if res.IsList() {
		return rc.CacheList
	}
	return rc.CacheItem
}

// TTL liefert die Gültigkeitsdauer für die Ressource der URL
func (g *Generator) TTL(rawURL string) time.Duration {
	res, ok := g.ParseResource(rawURL)
	if !ok {
		return DefaultTTL
	}
	if rc, ok := g.resources[res.Tag]; ok && rc.TTL > 0 {
		return rc.TTL
	}
	return DefaultTTL
}

// InvalidationPatterns liefert die Schlüsselpräfixe, die nach einer
// erfolgreichen Mutation entfernt werden müssen: die eigene Liste, das
// eigene Element, übergeordnete Elemente verschachtelter Pfade und die
// Listen abhängiger Ressourcen. Die Muster sind nicht auf einen Scope
// beschränkt und treffen alle Varianten nach "@".
func (g *Generator) InvalidationPatterns(rawURL, method string) []string {
	if !IsMutating(method) {
		return nil
	}
	res, ok := g.ParseResource(rawURL)
	if !ok {
		return nil
	}

	seen := map[string]bool{}
	var patterns []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			patterns = append(patterns, p)
		}
	}

	add(ListKey(res.Tag))
	if !res.IsList() {
		add(ItemKey(res.Tag, res.ID()))
	}
	for _, p := range res.Parents {
		add(ItemKey(p.Tag, p.ID))
	}
	for _, dep := range dependents[res.Tag] {
		add(ListKey(dep))
	}
	return patterns
}

// ScopeSeparator trennt Ressourcenschlüssel und Scope
const ScopeSeparator = "@"

// ListKey ist der Schlüssel (und das Präfix) der Sammlung einer Ressource
func ListKey(tag string) string {
	return tag + ":list"
}

// ItemKey ist der Schlüssel (und das Präfix) eines einzelnen Elements
func ItemKey(tag, id string) string {
	return tag + ":item:/" + id
}

// IsMutating meldet, ob die Methode Daten verändert
func IsMutating(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
