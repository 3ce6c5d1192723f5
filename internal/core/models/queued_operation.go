package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// QueuedOperation repräsentiert eine mutierende Anfrage an die Fiskal-API,
// die offline angenommen wurde und später erneut abgespielt wird.
type QueuedOperation struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	Kind          string         `gorm:"index;not null" json:"kind"`          // "create", "update", "delete"
	ResourceType  string         `gorm:"index" json:"resource_type"`          // z.B. "receipt"
	Endpoint      string         `gorm:"not null" json:"endpoint"`            // Ziel-URL oder Pfad
	Method        string         `gorm:"size:10;not null" json:"method"`      // HTTP-Methode
	Payload       datatypes.JSON `gorm:"type:json" json:"payload,omitempty"`  // optional
	Headers       datatypes.JSON `gorm:"type:json" json:"headers,omitempty"`  // optional, map[string]string
	Status        string         `gorm:"index;not null" json:"status"`
	Priority      int            `gorm:"index;default:0" json:"priority"`
	RetryCount    int            `gorm:"default:0" json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	LastError     string         `json:"last_error,omitempty"`
	CreatedAt     time.Time      `gorm:"index;autoCreateTime:false" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime:false" json:"updated_at"`
	NextAttemptAt time.Time      `gorm:"index" json:"next_attempt_at"` // frühester Zeitpunkt des nächsten Versuchs
}

// Operationsarten
const (
	KindCreate = "create"
	KindUpdate = "update"
	KindDelete = "delete"
)

// Status einer Operation
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// TableName liefert den Tabellennamen der Warteschlange
func (QueuedOperation) TableName() string {
	return "queued_operations"
}

// IsTerminal meldet, ob die Operation ihren Endzustand erreicht hat
func (o *QueuedOperation) IsTerminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusFailed
}

// HeaderMap dekodiert die gespeicherten Header. Fehlerhafte Daten ergeben eine leere Map.
func (o *QueuedOperation) HeaderMap() map[string]string {
	headers := map[string]string{}
	if len(o.Headers) == 0 {
		return headers
	}
	if err := json.Unmarshal(o.Headers, &headers); err != nil {
		return map[string]string{}
	}
	return headers
}

// Clone liefert eine tiefe Kopie, damit Schnappschüsse nicht mit dem Speicher geteilt werden
func (o *QueuedOperation) Clone() *QueuedOperation {
	if o == nil {
		return nil
	}
	c := *o
	if o.Payload != nil {
		c.Payload = append(datatypes.JSON(nil), o.Payload...)
	}
	if o.Headers != nil {
		c.Headers = append(datatypes.JSON(nil), o.Headers...)
	}
	return &c
}

// KindForMethod leitet die Operationsart aus der HTTP-Methode ab
func KindForMethod(method string) string {
	switch method {
	case "DELETE":
		return KindDelete
	case "PUT", "PATCH":
		return KindUpdate
	default:
		return KindCreate
	}
}
