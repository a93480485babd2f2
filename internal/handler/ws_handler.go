/*
Package handler provides the HTTP handlers and routing setup for the LawChat server.

This file contains the WebSocket connection gate: every inbound real-time connection
must present a bearer token in the "token" query parameter, verified against the same
secret the HTTP login flow signs with, before the connection is upgraded and any event
handling begins. The check runs exactly once per connection; decoded claims stay
attached to the connection for its lifetime.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"lawchat/internal/app/chat"
	"lawchat/internal/pkg/auth/jwt"
	"lawchat/internal/pkg/errs"
	"lawchat/internal/pkg/limiter"
	"lawchat/internal/pkg/logx"
	"lawchat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc that gates and upgrades WebSocket
// connection requests. Unauthenticated requests are rejected before the upgrade, so
// no event handler ever runs for them.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		token := r.URL.Query().Get("token")
		if token == "" {
			logx.Warn("WebSocket connection rejected: Missing token")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		claims, err := jwt.ParseToken(token, deps.Config.JWTSecret)
		if err != nil {
			logx.Warn("WebSocket connection rejected: Invalid or expired token", "error", err)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(deps.Manager, conn, claims.UserID, claims.Username, claims.Role)

		go client.WritePump()

		logx.Info("WebSocket connection established",
			"connection_id", client.ID(),
			"user_id", claims.UserID,
			"role", claims.Role,
		)

		client.ReadPump()
	}
}
