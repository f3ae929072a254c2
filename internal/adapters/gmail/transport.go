package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/mikey/llm-inbox-triage/internal/core"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

const me = "me"

var metadataHeaders = []string{"From", "To", "Subject", "Date"}

// TransportOptions tunes the Gmail transport
type TransportOptions struct {
	Query            string
	PermanentDelete  bool
	FetchConcurrency int
}

// Transport implements core.MailTransport on the Gmail API for one account
type Transport struct {
	svc     *gmailv1.Service
	opts    TransportOptions
	logger  *zap.Logger
	mu      sync.Mutex
	labels  map[string]string
	fetched bool
}

// NewTransport creates a transport over an authenticated service
func NewTransport(svc *gmailv1.Service, opts TransportOptions, logger *zap.Logger) *Transport {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 1
	}
	return &Transport{
		svc:    svc,
		opts:   opts,
		logger: logger,
		labels: make(map[string]string),
	}
}

// FetchRecent lists up to limit messages matching the query and loads their headers
func (t *Transport) FetchRecent(ctx context.Context, limit int) ([]*core.Email, error) {
	var ids []string
	req := t.svc.Users.Messages.List(me).Q(t.opts.Query)
	err := req.Pages(ctx, func(resp *gmailv1.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			if limit > 0 && len(ids) >= limit {
				return errStopPaging
			}
			ids = append(ids, m.Id)
		}
		if limit > 0 && len(ids) >= limit {
			return errStopPaging
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopPaging) {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	emails := make([]*core.Email, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.FetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			msg, err := t.svc.Users.Messages.Get(me, id).
				Format("metadata").
				MetadataHeaders(metadataHeaders...).
				Context(gctx).Do()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				t.logger.Warn("Failed to fetch message headers", zap.String("message_id", id), zap.Error(err))
				return nil
			}
			emails[i] = toEmail(msg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch message headers: %w", err)
	}

	out := make([]*core.Email, 0, len(emails))
	for _, e := range emails {
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

var errStopPaging = errors.New("stop paging")

func toEmail(msg *gmailv1.Message) *core.Email {
	email := &core.Email{
		ID:      msg.Id,
		Headers: make(map[string][]string),
	}
	if msg.InternalDate > 0 {
		email.ReceivedAt = time.UnixMilli(msg.InternalDate)
	}
	if msg.Payload == nil {
		return email
	}

	for _, h := range msg.Payload.Headers {
		email.Headers[h.Name] = append(email.Headers[h.Name], h.Value)
		switch strings.ToLower(h.Name) {
		case "from":
			email.From = h.Value
		case "subject":
			email.Subject = h.Value
		case "to":
			if addrs, err := mail.ParseAddressList(h.Value); err == nil {
				for _, a := range addrs {
					email.To = append(email.To, a.Address)
				}
			} else {
				email.To = append(email.To, h.Value)
			}
		case "date":
			if email.ReceivedAt.IsZero() {
				if d, err := mail.ParseDate(h.Value); err == nil {
					email.ReceivedAt = d
				}
			}
		}
	}
	return email
}

// GetBody loads the full message and returns its text content
func (t *Transport) GetBody(ctx context.Context, email *core.Email) (string, error) {
	msg, err := t.svc.Users.Messages.Get(me, email.ID).Format("full").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get message %s: %w", email.ID, err)
	}
	return messageText(msg), nil
}

// AddLabel applies the named label, creating it on first use
func (t *Transport) AddLabel(ctx context.Context, messageID, label string) error {
	labelID, err := t.labelID(ctx, label)
	if err != nil {
		return err
	}

	_, err = t.svc.Users.Messages.Modify(me, messageID, &gmailv1.ModifyMessageRequest{
		AddLabelIds: []string{labelID},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add label %s to %s: %w", label, messageID, err)
	}
	return nil
}

// Delete moves the message to trash, or removes it for good when configured
func (t *Transport) Delete(ctx context.Context, messageID string) error {
	if t.opts.PermanentDelete {
		if err := t.svc.Users.Messages.Delete(me, messageID).Context(ctx).Do(); err != nil {
			return fmt.Errorf("delete message %s: %w", messageID, err)
		}
		return nil
	}

	if _, err := t.svc.Users.Messages.Trash(me, messageID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("trash message %s: %w", messageID, err)
	}
	return nil
}

func (t *Transport) labelID(ctx context.Context, name string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.labels[name]; ok {
		return id, nil
	}
	if !t.fetched {
		if err := t.loadLabels(ctx); err != nil {
			return "", err
		}
		if id, ok := t.labels[name]; ok {
			return id, nil
		}
	}

	created, err := t.svc.Users.Labels.Create(me, &gmailv1.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			// created concurrently elsewhere
			if err := t.loadLabels(ctx); err != nil {
				return "", err
			}
			if id, ok := t.labels[name]; ok {
				return id, nil
			}
		}
		return "", fmt.Errorf("create label %s: %w", name, err)
	}

	t.logger.Info("Created label", zap.String("label", name), zap.String("label_id", created.Id))
	t.labels[name] = created.Id
	return created.Id, nil
}

func (t *Transport) loadLabels(ctx context.Context) error {
	resp, err := t.svc.Users.Labels.List(me).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	for _, l := range resp.Labels {
		t.labels[l.Name] = l.Id
	}
	t.fetched = true
	return nil
}
