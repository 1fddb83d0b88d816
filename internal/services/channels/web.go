package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"SignalRelay/internal/domain/models"
	"SignalRelay/pkg/push/webpush"
)

// WebSender is satisfied by *webpush.Client.
type WebSender interface {
	Send(ctx context.Context, sub webpush.Subscription, payload []byte) error
}

type webPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Icon  string            `json:"icon"`
	Data  map[string]string `json:"data"`
}

// WebPush delivers to browser subscriptions.
type WebPush struct {
	sender WebSender
	icon   string
}

func NewWebPush(sender WebSender, icon string) *WebPush {
	if icon == "" {
		icon = "/icons/icon-192.png"
	}
	return &WebPush{sender: sender, icon: icon}
}

func (w *WebPush) Kind() models.DestinationKind { return models.DestinationWebPush }

func (w *WebPush) Send(ctx context.Context, dest models.Destination, alert *models.Alert) (models.Delivery, error) {
	sub := dest.WebPush
	if sub == nil || sub.Endpoint == "" || sub.P256dh == "" || sub.Auth == "" {
		return models.Delivery{}, models.NewSendError(models.FailureInvalidDestination, errors.New("incomplete web push subscription"))
	}

	n := Format(alert)
	payload, err := json.Marshal(webPayload{
		Title: n.Title,
		Body:  n.Body,
		Icon:  w.icon,
		Data: map[string]string{
			"type":  n.Data["signalType"] + n.Data["direction"],
			"price": n.Data["price"],
		},
	})
	if err != nil {
		return models.Delivery{}, models.NewSendError(models.FailureUnknown, fmt.Errorf("marshal payload: %w", err))
	}

	err = w.sender.Send(ctx, webpush.Subscription{Endpoint: sub.Endpoint, P256dh: sub.P256dh, Auth: sub.Auth}, payload)
	if err != nil {
		return models.Delivery{}, models.NewSendError(classifyWeb(err), err)
	}
	return models.Delivery{Kind: models.DestinationWebPush}, nil
}

// classifyWeb treats 404/410 as a dead subscription and 429/5xx as retryable.
func classifyWeb(err error) models.FailureKind {
	var se *webpush.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusNotFound, se.StatusCode == http.StatusGone:
			return models.FailureInvalidDestination
		case se.StatusCode == http.StatusTooManyRequests, se.StatusCode >= 500:
			return models.FailureTransient
		default:
			return models.FailureUnknown
		}
	}
	if isTimeout(err) {
		return models.FailureTransient
	}
	return models.FailureUnknown
}
