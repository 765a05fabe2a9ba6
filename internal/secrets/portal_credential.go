package secrets

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// PortalKeyringService groups this engine's portal credential in the OS
// keychain, the same pattern as the teacher's IMAP password handling
// applied to the Portal Adapter's API key instead.
const PortalKeyringService = "jobagent-engine:portal"

// GetPortalAPIKey reads the portal API key for account (typically the
// user id) from the OS keychain.
func GetPortalAPIKey(account string) (string, error) {
	if strings.TrimSpace(account) == "" {
		return "", errors.New("keyring account name is empty")
	}
	key, err := keyring.Get(PortalKeyringService, account)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(key) == "" {
		return "", errors.New("portal API key not found in keychain")
	}
	return key, nil
}

// SetPortalAPIKey stores the portal API key for account.
func SetPortalAPIKey(account, apiKey string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(apiKey) == "" {
		return errors.New("api key is empty")
	}
	return keyring.Set(PortalKeyringService, account, apiKey)
}

// DeletePortalAPIKey removes the stored portal API key for account.
func DeletePortalAPIKey(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(PortalKeyringService, account)
}
