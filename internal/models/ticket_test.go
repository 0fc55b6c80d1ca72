package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTicketRecord(t *testing.T) {
	cat := "c1"
	ticket := &Ticket{
		ID:           "665f1c2e9b1d4a0012345678",
		TicketNumber: "QD-000042",
		Subject:      "WiFi outage in building A",
		Description:  "No connectivity since 9am",
		CategoryID:   &cat,
		Priority:     "high",
		Status:       "open",
	}

	rec := NewTicketRecord(ticket, "Network")

	assert.Equal(t, ticket.ID, rec.ID)
	assert.Equal(t, "Ticket #QD-000042\nSubject: WiFi outage in building A\nDescription: No connectivity since 9am\nCategory: Network\nPriority: high\nStatus: open", rec.Text)
	assert.Equal(t, map[string]string{
		MetaTicketID: ticket.ID,
		MetaCategory: "Network",
		MetaPriority: "high",
		MetaStatus:   "open",
	}, rec.Metadata)
}

func TestNewTicketRecord_EmptyCategoryIsUnknown(t *testing.T) {
	rec := NewTicketRecord(&Ticket{ID: "t1"}, "")

	assert.Equal(t, UnknownCategory, rec.Metadata[MetaCategory])
	assert.Contains(t, rec.Text, "Category: Unknown")
}

func TestTicketRecord_Clone(t *testing.T) {
	rec := NewTicketRecord(&Ticket{ID: "t1", Priority: "low"}, "Hardware")
	clone := rec.Clone()
	clone.Metadata[MetaPriority] = "urgent"

	assert.Equal(t, "low", rec.Metadata[MetaPriority])
}
