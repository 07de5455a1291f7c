// file: internal/chain/http.go

package chain

import (
	"crypto/tls"
	"net/http"

	"chained-datasource/config"
)

// NewHTTPClient builds the client used for chained downstream calls
func NewHTTPClient(cfg *config.DownstreamConfig) *http.Client {
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConns,
			IdleConnTimeout:     cfg.IdleConnTimeout,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			},
		},
	}
}
