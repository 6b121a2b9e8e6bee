package main

import (
	"encoding/json"
	"os"

	toxiproxy "github.com/JaydenElliott/toxiproxy-go"
)

// readProxyConfig reads a JSON array of proxy definitions, the same format
// the toxiproxy server accepts for startup population.
func readProxyConfig(path string) ([]toxiproxy.Proxy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var proxies []toxiproxy.Proxy
	if err := json.Unmarshal(data, &proxies); err != nil {
		return nil, err
	}
	return proxies, nil
}
