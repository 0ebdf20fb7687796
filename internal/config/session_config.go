package config

import "time"

type SessionConfig interface {
	GetOperationTimeout() time.Duration
	GetRenewalInterval() time.Duration
	GetRenewalThreshold() time.Duration
	GetSessionTokenTTL() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetOperationTimeout() time.Duration {
	return GetEnvDuration("SESSION_OPERATION_TIMEOUT", 30*time.Second)
}

func (Session) GetRenewalInterval() time.Duration {
	return GetEnvDuration("SESSION_RENEWAL_INTERVAL", time.Minute)
}

func (Session) GetRenewalThreshold() time.Duration {
	return GetEnvDuration("SESSION_RENEWAL_THRESHOLD", 5*time.Minute)
}

// GetSessionTokenTTL caps stored token lifetime for logins without rememberMe.
func (Session) GetSessionTokenTTL() time.Duration {
	return GetEnvDuration("SESSION_TOKEN_TTL", 12*time.Hour)
}
