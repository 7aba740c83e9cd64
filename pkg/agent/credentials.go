package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// CredentialSource supplies credentials for a single signing attempt.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials returns a fixed key pair stamped with the current time.
type StaticCredentials struct {
	KeyID  string
	Secret string
	Now    func() time.Time
}

func (s StaticCredentials) Credentials(ctx context.Context) (Credentials, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return Credentials{
		KeyID:  s.KeyID,
		Secret: s.Secret,
		Epoch:  now(),
	}, nil
}

// AzureCredentials acquires bearer tokens from an Azure token credential.
type AzureCredentials struct {
	cred   azcore.TokenCredential
	scopes []string
}

// NewAzureCredentials wraps an existing token credential.
func NewAzureCredentials(cred azcore.TokenCredential, scopes []string) *AzureCredentials {
	return &AzureCredentials{cred: cred, scopes: scopes}
}

// AzureOptions selects how the Azure token credential is constructed.
type AzureOptions struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewAzureCredentialsFromOptions builds a client secret credential when a
// secret is supplied and falls back to the default Azure credential chain.
func NewAzureCredentialsFromOptions(opts AzureOptions) (*AzureCredentials, error) {
	if len(opts.Scopes) == 0 {
		return nil, fmt.Errorf("azure credentials: at least one scope required")
	}

	var (
		cred azcore.TokenCredential
		err  error
	)

	if opts.ClientSecret != "" {
		cred, err = azidentity.NewClientSecretCredential(opts.TenantID, opts.ClientID, opts.ClientSecret, nil)
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
			TenantID: opts.TenantID,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("azure credentials: %w", err)
	}

	return NewAzureCredentials(cred, opts.Scopes), nil
}

func (a *AzureCredentials) Credentials(ctx context.Context) (Credentials, error) {
	tok, err := a.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: a.scopes})
	if err != nil {
		return Credentials{}, fmt.Errorf("acquire token: %w", err)
	}
	return Credentials{
		Token: tok.Token,
		Epoch: time.Now(),
	}, nil
}
