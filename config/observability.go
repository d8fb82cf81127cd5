package config

// StatsdConfig contains StatsD metrics configuration.
type StatsdConfig struct {
	// Enabled turns metric emission on. Requires Address to be set.
	Enabled bool `env:"ENABLED" envDefault:"false"`

	// Address is the UDP host:port of the StatsD sink.
	Address string `env:"ADDRESS" envDefault:""`

	// Prefix is prepended to every metric name.
	Prefix string `env:"PREFIX" envDefault:"wa_reporting"`
}
