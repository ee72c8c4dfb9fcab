package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"
)

const requestTimeout = 3 * time.Second

// UserCreated announces a user first seen through a provider login.
type UserCreated struct {
	UserID   string  `json:"id"`
	Provider string  `json:"source"`
	Email    *string `json:"email,omitempty"`
	Name     string  `json:"first_name"`
	Username *string `json:"username,omitempty"`
}

type UserClient interface {
	CreateUser(ctx context.Context, event UserCreated) error
}

type RBACClient interface {
	AssignRole(ctx context.Context, userID, role string) error
}

type requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

type userClient struct {
	conn    requester
	subject string
}

type rbacClient struct {
	conn    requester
	subject string
}

func NewUserClient(conn *nats.Conn, subject string) UserClient {
	return &userClient{conn: conn, subject: subject}
}

func NewRBACClient(conn *nats.Conn, subject string) RBACClient {
	return &rbacClient{conn: conn, subject: subject}
}

func (c *userClient) CreateUser(ctx context.Context, event UserCreated) error {
	return requestAck(ctx, c.conn, c.subject, event)
}

func (c *rbacClient) AssignRole(ctx context.Context, userID, role string) error {
	payload := map[string]interface{}{"user_id": userID, "role": role}
	return requestAck(ctx, c.conn, c.subject, payload)
}

func requestAck(ctx context.Context, conn requester, subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("empty response from %s", subject)
	}
	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return err
	}
	if !resp.OK {
		if resp.Error != "" {
			return errors.New(resp.Error)
		}
		return fmt.Errorf("request to %s failed", subject)
	}
	return nil
}
