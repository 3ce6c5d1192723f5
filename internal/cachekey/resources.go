package cachekey

import (
	"time"

	"fiscal-offline-go/config"
)

// DefaultTTL gilt für konfigurierte Ressourcen ohne eigene TTL
const DefaultTTL = 30 * time.Second

// resourceSegments bildet Pfadsegmente der Fiskal-API auf Ressourcen-Tags ab
var resourceSegments = map[string]string{
	"receipts":       "receipt",
	"merchants":      "merchant",
	"cashiers":       "cashier",
	"cash-registers": "cash-register",
	"point-of-sales": "point-of-sale",
	"suppliers":      "supplier",
	"daily-reports":  "daily-report",
	"journals":       "journal",
	"pems":           "pem",
	"notifications":  "notification",
	"telemetry":      "telemetry",
}

// dependents listet Ressourcen, deren Daten aus einer anderen abgeleitet sind.
// Eine Mutation auf dem Schlüssel macht die Listen der Werte ungültig.
var dependents = map[string][]string{
	"receipt":       {"daily-report", "journal"},
	"cash-register": {"pem"},
	"pem":           {"point-of-sale"},
}

// DefaultResources liefert die eingebaute Cache-Politik je Ressource
func DefaultResources() map[string]config.CacheResourceConfig {
	return map[string]config.CacheResourceConfig{
		"receipt":       {TTL: 5 * time.Minute, CacheList: true, CacheItem: true},
		"merchant":      {TTL: 30 * time.Minute, CacheList: true, CacheItem: true},
		"cashier":       {TTL: 30 * time.Minute, CacheList: true, CacheItem: true},
		"cash-register": {TTL: 30 * time.Minute, CacheList: true, CacheItem: true},
		"point-of-sale": {TTL: 30 * time.Minute, CacheList: true, CacheItem: true},
		"supplier":      {TTL: 30 * time.Minute, CacheList: true, CacheItem: true},
		"daily-report":  {TTL: 10 * time.Minute, CacheList: true, CacheItem: true},
		"journal":       {TTL: 10 * time.Minute, CacheList: true, CacheItem: true},
		"pem":           {TTL: 15 * time.Minute, CacheList: true, CacheItem: true},
		"notification":  {TTL: time.Minute, CacheList: false, CacheItem: true},
		"telemetry":     {TTL: 0, CacheList: false, CacheItem: false},
	}
}

// MergeResources überlagert die eingebaute Tabelle mit konfigurierten Werten
func MergeResources(overrides map[string]config.CacheResourceConfig) map[string]config.CacheResourceConfig {
	merged := DefaultResources()
	for tag, rc := range overrides {
		merged[tag] = rc
	}
	return merged
}
