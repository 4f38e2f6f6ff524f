package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"roomchat/internal/app/chat"
	"roomchat/internal/app/session"
	"roomchat/internal/metrics"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/resp"
)

// HandleWebSocket admits realtime connections.
//
// The session is resolved before the upgrade, but refusals are delivered after it as
// close frames: 1008 "unauthorized" for a bad or missing session, 1011 for store
// failures. Browsers cannot read HTTP status codes of a failed handshake.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	writeWait := deps.Pump.WriteWait

	return func(w http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrUpgradeRequired))
			return
		}

		u, authErr := deps.Resolver.Resolve(r.Context(), r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		if authErr != nil {
			ref := refusalFor(authErr)
			metrics.Admissions.WithLabelValues(ref.outcome).Inc()
			logx.Info("WebSocket connection refused",
				"code", ref.err.Code, "close_code", ref.closeCode, "reason", authErr.Error())
			chat.Refuse(conn, ref.closeCode, ref.reason, writeWait)
			return
		}

		client := chat.NewClient(conn, deps.Pump)

		c, err := deps.Hub.Admit(client, u)
		if err != nil {
			logx.Error(err, "Failed to admit connection", "user_id", int64(u.ID))
			chat.Refuse(conn, websocket.CloseInternalServerErr, chat.ReasonInternal, writeWait)
			return
		}
		metrics.Admissions.WithLabelValues(metrics.AdmitAccepted).Inc()

		go client.WritePump()

		client.ReadPump(func(frame []byte) {
			deps.Router.Handle(c, frame)
		})

		deps.Router.Forget(c.ID())
		deps.Hub.Remove(c.ID())
		client.Close(websocket.CloseNormalClosure, "")
	}
}

// refusal is how a failed session resolution is reported: the close frame sent
// after the upgrade and the coded error logged with it.
type refusal struct {
	closeCode int
	reason    string
	outcome   string
	err       *errs.CustomError
}

// refusalFor maps a resolver error to its refusal. Store failures are logged with their cause.
func refusalFor(err error) refusal {
	if errors.Is(err, session.ErrUnauthenticated) {
		return refusal{
			closeCode: websocket.ClosePolicyViolation,
			reason:    chat.ReasonUnauthorized,
			outcome:   metrics.AdmitUnauthorized,
			err:       errs.NewError(errs.ErrUnauthorized),
		}
	}
	return refusal{
		closeCode: websocket.CloseInternalServerErr,
		reason:    chat.ReasonInternal,
		outcome:   metrics.AdmitStoreError,
		err:       errs.NewError(errs.ErrStoreUnavailable, err),
	}
}
