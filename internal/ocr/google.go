package ocr

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// GoogleConfig holds credentials and routing for the Google OCR backends.
type GoogleConfig struct {
	ProjectID       string
	Location        string // Document AI location, "us" or "eu"
	ProcessorID     string // Document AI OCR processor
	CredentialsJSON string // inline service account JSON (GOOGLE_SERVICE_ACCOUNT_KEY)
	CredentialsFile string // path to service account JSON (GOOGLE_APPLICATION_CREDENTIALS)
}

// clientOptions parses the configured service account, inline JSON first. An
// empty slice means Application Default Credentials.
func (c GoogleConfig) clientOptions(ctx context.Context) ([]option.ClientOption, error) {
	const op = "clientOptions"

	var raw []byte
	switch {
	case c.CredentialsJSON != "":
		raw = []byte(c.CredentialsJSON)
	case c.CredentialsFile != "":
		data, err := os.ReadFile(c.CredentialsFile)
		if err != nil {
			return nil, WrapOCRError(op, ErrMissingCredentials, fmt.Sprintf("failed to read credentials file: %v", err))
		}
		raw = data
	default:
		return nil, nil
	}

	creds, err := google.CredentialsFromJSON(ctx, raw, cloudPlatformScope)
	if err != nil {
		return nil, WrapOCRError(op, ErrMissingCredentials, fmt.Sprintf("failed to parse credentials: %v", err))
	}
	return []option.ClientOption{option.WithCredentials(creds)}, nil
}

func (c GoogleConfig) documentAIEndpoint() string {
	return fmt.Sprintf("%s-documentai.googleapis.com:443", c.Location)
}
