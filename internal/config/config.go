package config

type Config interface {
	SessionConfig
	PrimaryConfig
	FederatedConfig
	StoreConfig
}

type mainConfig struct {
	Session
	Primary
	Federated
	Store
}

func New() Config {
	return mainConfig{}
}
