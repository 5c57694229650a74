package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mahaj/dupahar/pkg/model"
)

// Client talks to the api service. It implements the history-fetch and
// mutation collaborator contracts of the timeline engine, mapping
// transport failures and HTTP statuses onto the model error taxonomy.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Login obtains a token for a user. Called before New, so it is a
// package function rather than a method.
func Login(baseURL, userID, displayName string) (string, error) {
	body, _ := json.Marshal(map[string]string{"user_id": userID, "display_name": displayName})
	resp, err := http.Post(strings.TrimRight(baseURL, "/")+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", &model.NetworkError{Op: "login", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", strings.TrimSpace(string(msg)))
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &model.NetworkError{Op: "login", Err: err}
	}
	return out.Token, nil
}

// do issues a request and decodes the response into out (if non-nil),
// translating failures into the error taxonomy.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return &model.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if err := statusError(op, resp); err != nil {
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &model.NetworkError{Op: op, Err: err}
		}
	}
	return nil
}

// statusError maps a non-2xx response onto the taxonomy: 400 carries
// the violated precondition, 401/403 are permission failures, 404/409
// mean the target is gone, everything else is treated as transient.
func statusError(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	reason := strings.TrimSpace(string(msg))
	switch resp.StatusCode {
	case http.StatusBadRequest:
		if reason == "" {
			reason = "invalid request"
		}
		return &model.ValidationError{Op: op, Reason: reason}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &model.PermissionError{Op: op}
	case http.StatusNotFound, http.StatusConflict:
		return &model.ConflictError{Op: op}
	default:
		return &model.NetworkError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, reason)}
	}
}

// FetchPage retrieves one history page, oldest first within the page.
func (c *Client) FetchPage(ctx context.Context, channelID string, page, pageSize int) ([]model.Message, error) {
	path := "/history?channel_id=" + channelID +
		"&page=" + strconv.Itoa(page) +
		"&page_size=" + strconv.Itoa(pageSize)
	var items []model.Message
	if err := c.do(ctx, "fetch history", http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

type sendRequest struct {
	ChannelID  string            `json:"channel_id"`
	Content    string            `json:"content,omitempty"`
	Attachment *model.Attachment `json:"attachment,omitempty"`
	ReplyTo    int64             `json:"reply_to,omitempty"`
}

func (c *Client) Send(ctx context.Context, channelID, content string, attachment *model.Attachment, replyTo int64) (model.Message, error) {
	var out model.Message
	err := c.do(ctx, "send", http.MethodPost, "/messages",
		sendRequest{ChannelID: channelID, Content: content, Attachment: attachment, ReplyTo: replyTo}, &out)
	return out, err
}

type messageRef struct {
	ChannelID string `json:"channel_id"`
	ID        int64  `json:"id"`
	Content   string `json:"content,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
}

// annotateTarget stamps the addressed message onto a conflict error;
// the wire response does not carry it.
func annotateTarget(err error, id int64) error {
	var conflict *model.ConflictError
	if errors.As(err, &conflict) {
		conflict.MessageID = id
	}
	return err
}

func (c *Client) Edit(ctx context.Context, channelID string, id int64, content string) (model.Message, error) {
	var out model.Message
	err := c.do(ctx, "edit", http.MethodPost, "/messages/edit",
		messageRef{ChannelID: channelID, ID: id, Content: content}, &out)
	return out, annotateTarget(err, id)
}

func (c *Client) Delete(ctx context.Context, channelID string, id int64) error {
	return annotateTarget(c.do(ctx, "delete", http.MethodPost, "/messages/delete",
		messageRef{ChannelID: channelID, ID: id}, nil), id)
}

func (c *Client) React(ctx context.Context, channelID string, id int64, emoji string) error {
	return annotateTarget(c.do(ctx, "react", http.MethodPost, "/messages/react",
		messageRef{ChannelID: channelID, ID: id, Emoji: emoji}, nil), id)
}

func (c *Client) Unreact(ctx context.Context, channelID string, id int64, emoji string) error {
	return annotateTarget(c.do(ctx, "unreact", http.MethodPost, "/messages/unreact",
		messageRef{ChannelID: channelID, ID: id, Emoji: emoji}, nil), id)
}

func (c *Client) Pin(ctx context.Context, channelID string, id int64) (model.Message, error) {
	var out model.Message
	err := c.do(ctx, "pin", http.MethodPost, "/messages/pin",
		messageRef{ChannelID: channelID, ID: id}, &out)
	return out, annotateTarget(err, id)
}

func (c *Client) Unpin(ctx context.Context, channelID string, id int64) (model.Message, error) {
	var out model.Message
	err := c.do(ctx, "unpin", http.MethodPost, "/messages/unpin",
		messageRef{ChannelID: channelID, ID: id}, &out)
	return out, annotateTarget(err, id)
}

// UploadAttachment streams a file to the api service and returns the
// descriptor to attach to a send.
func (c *Client) UploadAttachment(ctx context.Context, name string, mimeType string, r io.Reader) (*model.Attachment, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)
	if mimeType != "" {
		req.Header.Set("X-Upload-Mime", mimeType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &model.NetworkError{Op: "upload", Err: err}
	}
	defer resp.Body.Close()
	if err := statusError("upload", resp); err != nil {
		return nil, err
	}
	var att model.Attachment
	if err := json.NewDecoder(resp.Body).Decode(&att); err != nil {
		return nil, &model.NetworkError{Op: "upload", Err: err}
	}
	return &att, nil
}

// ChannelUsers reads the channel's presence set.
func (c *Client) ChannelUsers(ctx context.Context, channelID string) ([]string, error) {
	var users []string
	err := c.do(ctx, "presence", http.MethodGet, "/channels/"+channelID+"/users", nil, &users)
	return users, err
}

// Conversation is one row of the current user's DM list.
type Conversation struct {
	UserID      string    `json:"user_id"`
	OtherUserID string    `json:"other_user_id"`
	LastUpdated time.Time `json:"last_updated"`
	UnreadCount int64     `json:"unread_count"`
}

// Conversations lists the current user's DMs with unread counts.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	err := c.do(ctx, "conversations", http.MethodGet, "/conversations", nil, &out)
	return out, err
}

// MarkRead resets the unread counter for a DM.
func (c *Client) MarkRead(ctx context.Context, otherUserID string) error {
	return c.do(ctx, "mark read", http.MethodPost, "/conversations/read",
		map[string]string{"other_user_id": otherUserID}, nil)
}
