package handler

import (
	"context"

	"lawchat/internal/app/chat"
	"lawchat/internal/configs"
)

// HistoryStore is the slice of the durable message store the HTTP surface needs:
// reading a case's persisted history and bulk-deleting it.
type HistoryStore interface {
	CaseHistory(ctx context.Context, caseID string) ([]chat.Message, error)
	DeleteCaseMessages(ctx context.Context, caseID string) (int64, error)
}

// AppDeps bundles the collaborators shared by the HTTP and WebSocket handlers.
type AppDeps struct {
	Manager *chat.Manager
	Config  *configs.AppConfig
	Cases   chat.CaseLookup
	Store   HistoryStore
}
