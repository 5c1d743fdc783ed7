package utils

import (
	"crypto/tls"
	"net/http"
	"time"
)

// NewHTTPClient timeout 为 0 时不限制整体耗时（流式响应可能远超普通请求）
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: false,
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
