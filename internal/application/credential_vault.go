package application

import (
	"fmt"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	"github.com/rs/zerolog"
)

// CredentialVault seals access tokens and destination secrets before they
// reach a repository and opens them for connector use.
type CredentialVault struct {
	encryptionSvc ports.EncryptionService
	logger        zerolog.Logger
}

// NewCredentialVault creates a vault over encryptionSvc.
func NewCredentialVault(encryptionSvc ports.EncryptionService, logger zerolog.Logger) *CredentialVault {
	return &CredentialVault{encryptionSvc: encryptionSvc, logger: logger}
}

// Seal encrypts a secret for storage.
func (v *CredentialVault) Seal(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	sealed, err := v.encryptionSvc.Encrypt(secret)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt secret: %w", err)
	}
	return sealed, nil
}

// Open decrypts a stored secret.
func (v *CredentialVault) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", fmt.Errorf("sealed secret cannot be empty")
	}
	secret, err := v.encryptionSvc.Decrypt(sealed)
	if err != nil {
		v.logger.Error().Err(err).Msg("Failed to decrypt credential")
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return secret, nil
}

// SealDestination encrypts every secret field present in creds.
func (v *CredentialVault) SealDestination(creds domain.DestinationCredentials) (domain.DestinationCredentials, error) {
	return v.mapSecrets(creds, v.Seal)
}

// OpenDestination decrypts every secret field present in creds.
func (v *CredentialVault) OpenDestination(creds domain.DestinationCredentials) (domain.DestinationCredentials, error) {
	return v.mapSecrets(creds, v.Open)
}

func (v *CredentialVault) mapSecrets(creds domain.DestinationCredentials, fn func(string) (string, error)) (domain.DestinationCredentials, error) {
	fields := []*string{&creds.AccessToken, &creds.ConsumerKey, &creds.ConsumerSecret}
	for _, f := range fields {
		if *f == "" {
			continue
		}
		out, err := fn(*f)
		if err != nil {
			return domain.DestinationCredentials{}, err
		}
		*f = out
	}
	return creds, nil
}
