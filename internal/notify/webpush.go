package notify

import (
	"errors"
	"net/http"
	"time"

	"devcollab/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// WebPush sends notifications through the browser push services using VAPID.
type WebPush struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	TTL        time.Duration
	Client     *http.Client
}

func NewWebPush(publicKey, privateKey, subject string) (*WebPush, error) {
	if publicKey == "" || privateKey == "" {
		return nil, errors.New("vapid keys are required")
	}
	return &WebPush{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		Subject:    subject,
		TTL:        24 * time.Hour,
		Client:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (w *WebPush) Send(sub models.PushSubscription, payload []byte) (int, error) {
	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      w.Client,
		Subscriber:      w.Subject,
		VAPIDPublicKey:  w.PublicKey,
		VAPIDPrivateKey: w.PrivateKey,
		TTL:             int(w.TTL.Seconds()),
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, nil
}

// GenerateVAPIDKeys returns a new base64url encoded key pair.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	return publicKey, privateKey, err
}
