package natsadapter

import (
	"encoding/json"
	"errors"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/example/identity-service/internal/tokenverify"
)

// VerifyHandler answers access-token verification requests from other services.
type VerifyHandler struct {
	parser    tokenverify.Parser
	now       func() time.Time
	respondFn func(msg *nats.Msg, resp verifyResponse)
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	OK         bool           `json:"ok"`
	UserID     string         `json:"user_id,omitempty"`
	TelegramID string         `json:"telegram_id,omitempty"`
	GoogleID   string         `json:"google_id,omitempty"`
	Error      string         `json:"error,omitempty"`
	Claims     map[string]any `json:"claims,omitempty"`
}

func NewVerifyHandler(parser tokenverify.Parser) *VerifyHandler {
	return &VerifyHandler{parser: parser, now: time.Now, respondFn: respond}
}

func (h *VerifyHandler) Subscribe(conn *nats.Conn, subject, queue string) (*nats.Subscription, error) {
	if conn == nil {
		return nil, errors.New("nats connection is nil")
	}
	return conn.QueueSubscribe(subject, queue, h.handle)
}

func (h *VerifyHandler) handle(msg *nats.Msg) {
	var req verifyRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.respondFn(msg, verifyResponse{OK: false, Error: "invalid_payload"})
		return
	}
	result, err := tokenverify.Verify(h.parser, req.Token, h.now)
	if err != nil {
		switch {
		case errors.Is(err, tokenverify.ErrTokenExpired):
			h.respondFn(msg, verifyResponse{OK: false, Error: "expired"})
		case errors.Is(err, tokenverify.ErrSubjectMissing):
			h.respondFn(msg, verifyResponse{OK: false, Error: "subject_missing"})
		default:
			h.respondFn(msg, verifyResponse{OK: false, Error: "invalid_token"})
		}
		return
	}
	h.respondFn(msg, verifyResponse{
		OK:         true,
		UserID:     result.UserID,
		TelegramID: result.TelegramID,
		GoogleID:   result.GoogleID,
		Claims:     result.Claims,
	})
}

func respond(msg *nats.Msg, resp verifyResponse) {
	data, _ := json.Marshal(resp)
	_ = msg.Respond(data)
}
