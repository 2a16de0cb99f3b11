package handlers

import "github.com/openmined/calsync/internal/client/sync"

type StatusResponse struct {
	Version  string             `json:"version"`
	Mode     string             `json:"mode"`
	Reloader string             `json:"reloader"`
	Entries  []sync.EntryStatus `json:"entries"`
}

type HistoryRequest struct {
	Entry int `form:"entry" binding:"min=0"`
	Limit int `form:"limit" binding:"min=0,max=1000"`
}

type HistoryResponse struct {
	Events []sync.JournalEvent `json:"events"`
}

type EntryURI struct {
	Index int `uri:"index" binding:"required,min=1"`
}
