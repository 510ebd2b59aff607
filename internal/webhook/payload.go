// Package webhook composes lead events and delivers them to the configured
// marketing sinks.
package webhook

import (
	"time"

	"github.com/Lllllllleong/solarleadcapture/internal/attribution"
)

// Event names a webhook event.
type Event string

const (
	EventPartial   Event = "lead.partial"
	EventCompleted Event = "lead.completed"
	EventUpdated   Event = "lead.updated"
	EventContact   Event = "contact.submitted"
)

// Payload is the flat JSON object posted to every sink.
type Payload map[string]any

// Event returns the payload's event name.
func (p Payload) Event() Event {
	s, _ := p["event"].(string)
	return Event(s)
}

// Bill is the document entry of a lead event. FileURL is empty for partial
// events, which describe files that have not been uploaded.
type Bill struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl,omitempty"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
	Index    int    `json:"index"`
}

// Lead is everything a lead event reports.
type Lead struct {
	Event       Event
	UserID      string
	Completed   bool
	CurrentStep *int
	Fields      map[string]string
	Bills       []Bill
	// BillCount overrides len(Bills) when Bills is a truncated list.
	BillCount *int
	// FailedBills is reported on completed events only.
	FailedBills *int
	Attribution attribution.Attribution
	Timestamp   time.Time
}

// Payload flattens l into the wire shape sinks receive.
func (l Lead) Payload() Payload {
	p := Payload{}
	for k, v := range l.Fields {
		p[k] = v
	}

	var step any
	if l.CurrentStep != nil {
		step = *l.CurrentStep
	}
	bills := l.Bills
	if bills == nil {
		bills = []Bill{}
	}

	p["event"] = string(l.Event)
	p["completed"] = l.Completed
	p["currentStep"] = step
	p["timestamp"] = l.Timestamp.UTC().Format(time.RFC3339)
	p["userId"] = l.UserID
	if l.BillCount != nil {
		p["billCount"] = *l.BillCount
	} else {
		p["billCount"] = len(bills)
	}
	p["bills"] = bills
	if l.FailedBills != nil {
		p["billFailedCount"] = *l.FailedBills
	}
	addAttribution(p, l.Attribution)
	return p
}

// Contact builds the contact.submitted payload. Form fields and attribution
// are nested under "data".
func Contact(fields map[string]string, attr attribution.Attribution, ts time.Time) Payload {
	data := Payload{}
	for k, v := range fields {
		if v == "" {
			data[k] = nil
			continue
		}
		data[k] = v
	}
	addAttribution(data, attr)
	return Payload{
		"event":     string(EventContact),
		"timestamp": ts.UTC().Format(time.RFC3339),
		"data":      data,
	}
}

func addAttribution(p Payload, attr attribution.Attribution) {
	for _, k := range attribution.Keys {
		if v, ok := attr.Fields[k]; ok && v != "" {
			p[k] = v
		} else {
			p[k] = nil
		}
	}
	p[attribution.FirstTouchKey] = snapshotValue(attr.FirstTouch)
	p[attribution.LastTouchKey] = snapshotValue(attr.LastTouch)
}

func snapshotValue(s *attribution.Snapshot) any {
	if s == nil {
		return nil
	}
	return s
}
