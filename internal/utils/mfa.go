package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// MFAConfig holds configuration for TOTP verification
type MFAConfig struct {
	Issuer    string
	Period    uint
	Digits    otp.Digits
	Algorithm otp.Algorithm
}

// DefaultMFAConfig returns the default MFA configuration
func DefaultMFAConfig() MFAConfig {
	return MFAConfig{
		Issuer:    "NANOREM",
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// GenerateTOTPSecret generates a new TOTP secret for an admin account
func GenerateTOTPSecret(config MFAConfig, accountName string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      config.Issuer,
		AccountName: accountName,
		Period:      config.Period,
		Digits:      config.Digits,
		Algorithm:   config.Algorithm,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// ValidateTOTPCode validates a TOTP code against a secret
func ValidateTOTPCode(secret, code string, config MFAConfig) bool {
	code = strings.ReplaceAll(code, " ", "")

	valid, err := totp.ValidateCustom(
		code,
		secret,
		time.Now().UTC(),
		totp.ValidateOpts{
			Period:    config.Period,
			Digits:    config.Digits,
			Algorithm: config.Algorithm,
		},
	)
	if err != nil {
		return false
	}
	return valid
}
