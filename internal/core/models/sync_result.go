package models

// SyncResult ist das Ergebnis eines einzelnen Wiederholungsversuchs
type SyncResult struct {
	Operation *QueuedOperation `json:"operation"`
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
	Status    int              `json:"status,omitempty"` // HTTP-Status der Antwort, falls vorhanden
	Response  []byte           `json:"response,omitempty"`
}

// BatchSyncResult fasst einen Durchlauf der Synchronisation zusammen
type BatchSyncResult struct {
	Total        int          `json:"total"`
	SuccessCount int          `json:"success_count"`
	FailureCount int          `json:"failure_count"`
	Results      []SyncResult `json:"results"`
}

// Add nimmt ein Einzelergebnis in die Zusammenfassung auf
func (b *BatchSyncResult) Add(r SyncResult) {
	b.Total++
	if r.Success {
		b.SuccessCount++
	} else {
		b.FailureCount++
	}
	b.Results = append(b.Results, r)
}

// QueueStats zählt Operationen je Status
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// Active liefert die Anzahl nicht abgeschlossener Operationen
func (s QueueStats) Active() int {
	return s.Pending + s.Processing
}
