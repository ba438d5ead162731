package config

// KeyStatus describes whether an API credential is configured.
type KeyStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Masked     string `json:"masked,omitempty"`
}

// CheckAPIKeys reports the status of configured API credentials.
// Only the CoinGecko key is optional-but-useful: without it the client
// talks to the public host at free-tier rate limits.
func (c *Config) CheckAPIKeys() []KeyStatus {
	return []KeyStatus{
		checkKey("CoinGecko API Key", c.CoinGecko.APIKey),
	}
}

func checkKey(name, key string) KeyStatus {
	status := KeyStatus{Name: name, Configured: key != ""}
	if status.Configured {
		status.Masked = maskKey(key)
	}
	return status
}

// maskKey shows only the first and last 3 characters of a key.
func maskKey(key string) string {
	if len(key) <= 6 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
