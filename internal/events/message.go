package events

import (
	"encoding/json"
	"time"
)

// Message ist die JSON-Form eines Ereignisses für SSE und MQTT
type Message struct {
	Type         Type      `json:"type"`
	OperationID  string    `json:"operation_id,omitempty"`
	ResourceType string    `json:"resource_type,omitempty"`
	Status       string    `json:"status,omitempty"`
	RetryCount   int       `json:"retry_count,omitempty"`
	HTTPStatus   int       `json:"http_status,omitempty"`
	Error        string    `json:"error,omitempty"`
	Total        int       `json:"total,omitempty"`
	SuccessCount int       `json:"success_count,omitempty"`
	FailureCount int       `json:"failure_count,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewMessage reduziert ein Ereignis auf seine übertragbaren Felder
func NewMessage(e Event) Message {
	msg := Message{Type: e.Type, Timestamp: e.Time}

	if e.Operation != nil {
		msg.OperationID = e.Operation.ID
		msg.ResourceType = e.Operation.ResourceType
		msg.Status = e.Operation.Status
		msg.RetryCount = e.Operation.RetryCount
	}
	if e.Result != nil {
		msg.HTTPStatus = e.Result.Status
		msg.Error = e.Result.Error
	}
	if e.Batch != nil {
		msg.Total = e.Batch.Total
		msg.SuccessCount = e.Batch.SuccessCount
		msg.FailureCount = e.Batch.FailureCount
	}
	if e.Err != nil {
		msg.Error = e.Err.Error()
	}
	return msg
}

// Encode serialisiert ein Ereignis als JSON
func Encode(e Event) ([]byte, error) {
	return json.Marshal(NewMessage(e))
}
