package push

import (
	"context"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Sender delivers one encrypted payload to one device endpoint and returns
// the push service's HTTP status.
type Sender interface {
	Send(ctx context.Context, sub *Subscription, payload []byte) (int, error)
}

// WebPushSender signs requests with the server's VAPID key pair. The Topic
// header carries the shared collapse tag so push services replace a pending
// notification instead of stacking a second one.
type WebPushSender struct {
	subscriber string
	publicKey  string
	privateKey string
	timeout    time.Duration
}

func NewWebPushSender(subscriber, publicKey, privateKey string, timeout time.Duration) *WebPushSender {
	return &WebPushSender{
		subscriber: subscriber,
		publicKey:  publicKey,
		privateKey: privateKey,
		timeout:    timeout,
	}
}

func (s *WebPushSender) Send(ctx context.Context, sub *Subscription, payload []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             int(s.timeout.Seconds()) + 60,
		Topic:           notificationTag,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

// gone reports a status that means the endpoint no longer exists and the
// subscription row should be pruned.
func gone(status int) bool {
	return status == http.StatusNotFound || status == http.StatusGone
}

func delivered(status int) bool {
	return status >= 200 && status < 300
}
