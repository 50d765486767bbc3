package teamgate

import (
	"context"

	"github.com/avrelium/teamgate/internal"
	"github.com/avrelium/teamgate/store"
)

// otpTokenService is the default TokenService: uniformly random numeric
// codes, with provider eligibility derived from the user record.
type otpTokenService struct {
	digits int
}

func newOtpTokenService(cfg MfaConfig) *otpTokenService {
	return &otpTokenService{digits: cfg.OtpDigits}
}

func (s *otpTokenService) Generate(_ context.Context, _ *store.User, _ MfaProvider) (string, error) {
	return internal.NewOTP(s.digits)
}

// EnabledProviders lists the channels the user can currently receive a code
// on. Order is not significant; eligibility is re-checked by the engine at
// send time.
func (s *otpTokenService) EnabledProviders(user *store.User) []MfaProvider {
	if user == nil {
		return nil
	}

	var providers []MfaProvider
	if user.PhoneNumber != "" {
		providers = append(providers, ProviderSms)
	}
	if user.Email != "" {
		providers = append(providers, ProviderEmail)
	}
	if len(user.AuthenticatorSecret) > 0 {
		providers = append(providers, ProviderAuthenticator)
	}
	return providers
}
