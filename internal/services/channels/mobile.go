package channels

import (
	"context"
	"errors"
	"net"
	"strings"

	"SignalRelay/internal/domain/models"
	"SignalRelay/pkg/push/snspush"

	"github.com/aws/smithy-go"
)

// MobileSender is satisfied by *snspush.Client.
type MobileSender interface {
	Send(ctx context.Context, token string, msg snspush.Message) (string, error)
}

// MobilePush delivers to device tokens with high priority and the default sound.
type MobilePush struct {
	sender    MobileSender
	channelID string
}

func NewMobilePush(sender MobileSender, channelID string) *MobilePush {
	if channelID == "" {
		channelID = "trading_alerts"
	}
	return &MobilePush{sender: sender, channelID: channelID}
}

func (m *MobilePush) Kind() models.DestinationKind { return models.DestinationMobilePush }

func (m *MobilePush) Send(ctx context.Context, dest models.Destination, alert *models.Alert) (models.Delivery, error) {
	if dest.Token == "" {
		return models.Delivery{}, models.NewSendError(models.FailureInvalidDestination, errors.New("empty device token"))
	}
	n := Format(alert)
	id, err := m.sender.Send(ctx, dest.Token, snspush.Message{
		Title:     n.Title,
		Body:      n.Body,
		Data:      n.Data,
		Sound:     "default",
		ChannelID: m.channelID,
		Badge:     1,
	})
	if err != nil {
		return models.Delivery{}, models.NewSendError(classifyMobile(err), err)
	}
	return models.Delivery{Kind: models.DestinationMobilePush, MessageID: id}, nil
}

// classifyMobile maps SNS errors onto failure kinds. Only errors about the device
// itself are InvalidDestination: a disabled endpoint, or an invalid-parameter error
// naming the token. NotFound and other invalid-parameter errors also come back for
// a wrong platform application or an oversized message, which affect every device.
func classifyMobile(err error) models.FailureKind {
	if isTimeout(err) {
		return models.FailureTransient
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return models.FailureUnknown
	}
	switch apiErr.ErrorCode() {
	case "EndpointDisabled":
		return models.FailureInvalidDestination
	case "InvalidParameter":
		if namesToken(apiErr.ErrorMessage()) {
			return models.FailureInvalidDestination
		}
		return models.FailureUnknown
	case "Throttling", "Throttled", "InternalError", "ServiceUnavailable", "KMSThrottling":
		return models.FailureTransient
	}
	if apiErr.ErrorFault() == smithy.FaultServer {
		return models.FailureTransient
	}
	return models.FailureUnknown
}

// namesToken matches SNS messages like "Invalid parameter: Token Reason: ...".
func namesToken(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "parameter: token")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}