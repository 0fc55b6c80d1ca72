package models

// SimilarTicketsRequest is the request for similar ticket retrieval
type SimilarTicketsRequest struct {
	Ticket string `json:"ticket" validate:"required"`
	K      int    `json:"k" validate:"min=1,max=50"`
}

// SimilarTicket is one entry of the similar tickets response, closest first
type SimilarTicket struct {
	TicketID string `json:"ticket_id"`
}

// AddTicketRequest is the request for ingesting a ticket into the corpus
type AddTicketRequest struct {
	ID string `json:"id" validate:"required"`
}

// AddTicketResponse acknowledges an ingestion. Added is false when the ticket
// was already part of the corpus.
type AddTicketResponse struct {
	Status   string `json:"status"`
	TicketID string `json:"ticket_id"`
	Added    bool   `json:"added"`
}

// ReindexResponse reports a rebuild of the external vector index
type ReindexResponse struct {
	Status  string `json:"status"`
	Indexed int    `json:"indexed"`
}

// CorpusStatsResponse describes the persisted corpus
type CorpusStatsResponse struct {
	Records   int    `json:"records"`
	Backend   string `json:"backend"`
	Retriever string `json:"retriever"`
}
