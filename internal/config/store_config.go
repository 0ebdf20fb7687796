package config

type StoreConfig interface {
	GetStorePath() string
	GetStoreRedisURL() string
}

type Store struct{}

var _ StoreConfig = Store{}

// GetStorePath is the SQLite database file backing the credential store.
func (Store) GetStorePath() string {
	return GetEnv("CREDENTIAL_STORE_PATH", "./credentials.db")
}

// GetStoreRedisURL, when set, selects the Redis backend instead of SQLite.
func (Store) GetStoreRedisURL() string {
	return GetEnv("CREDENTIAL_STORE_REDIS_URL", "")
}
