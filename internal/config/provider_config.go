package config

type PrimaryConfig interface {
	GetPrimaryBaseURL() string
}

type Primary struct{}

var _ PrimaryConfig = Primary{}

func (Primary) GetPrimaryBaseURL() string {
	return GetEnv("PRIMARY_BASE_URL", "http://localhost:8080/api/auth")
}

type FederatedConfig interface {
	GetFederatedIssuer() string
	GetFederatedClientID() string
	GetFederatedClientSecret() string
	GetFederatedSignupEndpoint() string
	GetFederatedPasswordEndpoint() string
	GetFederatedPasswordResetEndpoint() string
}

type Federated struct{}

var _ FederatedConfig = Federated{}

func (Federated) GetFederatedIssuer() string {
	return GetEnv("FEDERATED_ISSUER", "")
}

func (Federated) GetFederatedClientID() string {
	return GetEnv("FEDERATED_CLIENT_ID", "")
}

func (Federated) GetFederatedClientSecret() string {
	return GetEnv("FEDERATED_CLIENT_SECRET", "")
}

func (Federated) GetFederatedSignupEndpoint() string {
	return GetEnv("FEDERATED_SIGNUP_ENDPOINT", "")
}

func (Federated) GetFederatedPasswordEndpoint() string {
	return GetEnv("FEDERATED_PASSWORD_ENDPOINT", "")
}

func (Federated) GetFederatedPasswordResetEndpoint() string {
	return GetEnv("FEDERATED_PASSWORD_RESET_ENDPOINT", "")
}
