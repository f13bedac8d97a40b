package dynamo

// Config holds configuration for the Store.
type Config struct {
	// Table is the settings table. Partition key "schema_id", sort key "key",
	// both strings.
	// Default: "settings"
	Table string

	// MaxBatch caps the number of writes per TransactWriteItems call.
	// Default and max: 100
	MaxBatch int
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		Table:    "settings",
		MaxBatch: maxTransactItems,
	}
}

const maxTransactItems = 100

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "settings"
	}
	if c.MaxBatch < 1 || c.MaxBatch > maxTransactItems {
		c.MaxBatch = maxTransactItems
	}
}
