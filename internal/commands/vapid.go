package commands

import (
	"fmt"

	"devcollab/internal/notify"
)

// GenerateVAPIDKeys prints a fresh web push key pair in env file form.
func GenerateVAPIDKeys() error {
	publicKey, privateKey, err := notify.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("failed to generate VAPID keys: %w", err)
	}
	fmt.Printf("VAPID_PUBLIC_KEY=%s\n", publicKey)
	fmt.Printf("VAPID_PRIVATE_KEY=%s\n", privateKey)
	return nil
}
