/*
Package handler provides the HTTP handlers and routing setup for the LawChat server.

This file contains the case chat history endpoints: reading a case's persisted
messages (ascending by send time) and bulk-deleting a case's history. Both apply the
same access rule as the real-time join/send paths.
*/
package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lawchat/internal/app/cases"
	"lawchat/internal/pkg/auth/jwt"
	"lawchat/internal/pkg/errs"
	"lawchat/internal/pkg/logx"
	"lawchat/internal/pkg/resp"
)

// resolveAuthorizedCase fetches the case from the path parameter and applies the
// shared access rule for the authenticated requester. It writes the error response
// itself and returns nil when the request must not proceed.
func resolveAuthorizedCase(w http.ResponseWriter, r *http.Request, deps *AppDeps) *cases.Case {
	claims := jwt.GetClaimsFromContext(r)
	if claims == nil {
		resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
		return nil
	}

	caseID := chi.URLParam(r, "caseID")
	if caseID == "" {
		resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
		return nil
	}

	caseData, err := deps.Cases.GetCase(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, cases.ErrNotFound) {
			resp.RespondError(w, r, errs.NewError(errs.ErrCaseNotFound))
			return nil
		}

		logx.Error(err, "Case lookup failed", "case_id", caseID)
		resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
		return nil
	}

	if !caseData.AccessibleBy(claims.UserID, claims.Role) {
		logx.Warn("Unauthorized case history access attempt",
			"case_id", caseID,
			"user_id", claims.UserID,
			"role", claims.Role,
		)
		resp.RespondError(w, r, errs.NewError(errs.ErrCaseAccessDenied))
		return nil
	}

	return caseData
}

// HandleCaseHistory returns the case's persisted chat messages, oldest first.
func HandleCaseHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caseData := resolveAuthorizedCase(w, r, deps)
		if caseData == nil {
			return
		}

		history, err := deps.Store.CaseHistory(r.Context(), caseData.ID)
		if err != nil {
			logx.Error(err, "Failed to read case history", "case_id", caseData.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"caseId":   caseData.ID,
			"messages": history,
		})
	}
}

// HandleDeleteCaseMessages removes the case's entire chat history.
func HandleDeleteCaseMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caseData := resolveAuthorizedCase(w, r, deps)
		if caseData == nil {
			return
		}

		deleted, err := deps.Store.DeleteCaseMessages(r.Context(), caseData.ID)
		if err != nil {
			logx.Error(err, "Failed to delete case history", "case_id", caseData.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"deletedCount": deleted,
		})
	}
}
