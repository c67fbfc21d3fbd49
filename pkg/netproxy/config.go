// Package netproxy resolves HTTP/HTTPS proxy configuration from the
// standard HTTP_PROXY/HTTPS_PROXY/ALL_PROXY/NO_PROXY environment
// variables and establishes HTTP CONNECT tunnels through the result.
package netproxy

import (
	"net"
	"net/url"
	"os"
	"strings"
)

// Config is proxy configuration that can be set explicitly or read
// from the environment. A nil field means "not configured"; an empty
// string is a valid (if useless) configured value and is kept
// distinct from nil.
type Config struct {
	HTTPProxy  *string
	HTTPSProxy *string
	AllProxy   *string
	NoProxy    *string
}

func lookupEither(upper, lower string) *string {
	if v, ok := os.LookupEnv(upper); ok {
		return &v
	}
	if v, ok := os.LookupEnv(lower); ok {
		return &v
	}
	return nil
}

// FromEnv builds a Config by reading HTTP_PROXY/http_proxy,
// HTTPS_PROXY/https_proxy, ALL_PROXY/all_proxy and NO_PROXY/no_proxy,
// checking the uppercase name first.
func FromEnv() Config {
	return Config{
		HTTPProxy:  lookupEither("HTTP_PROXY", "http_proxy"),
		HTTPSProxy: lookupEither("HTTPS_PROXY", "https_proxy"),
		AllProxy:   lookupEither("ALL_PROXY", "all_proxy"),
		NoProxy:    lookupEither("NO_PROXY", "no_proxy"),
	}
}

// MergeWithEnv returns a copy of c with any unset field filled in from
// the environment. Explicitly set fields on c take precedence.
func (c Config) MergeWithEnv() Config {
	env := FromEnv()
	merged := c
	if merged.HTTPProxy == nil {
		merged.HTTPProxy = env.HTTPProxy
	}
	if merged.HTTPSProxy == nil {
		merged.HTTPSProxy = env.HTTPSProxy
	}
	if merged.AllProxy == nil {
		merged.AllProxy = env.AllProxy
	}
	if merged.NoProxy == nil {
		merged.NoProxy = env.NoProxy
	}
	return merged
}

// HasProxy reports whether any of HTTPProxy/HTTPSProxy/AllProxy is
// configured.
func (c Config) HasProxy() bool {
	return c.HTTPProxy != nil || c.HTTPSProxy != nil || c.AllProxy != nil
}

// ProxyForURL returns the proxy URL that should be used for target,
// or "" if target should connect directly (either because its host
// matches a NO_PROXY rule, or because no applicable proxy is set).
func (c Config) ProxyForURL(target *url.URL) string {
	host := target.Hostname()
	if c.shouldBypass(host) {
		return ""
	}

	if target.Scheme == "https" {
		return derefOr(c.HTTPSProxy, derefOr(c.AllProxy, ""))
	}
	return derefOr(c.HTTPProxy, derefOr(c.AllProxy, ""))
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

// shouldBypass implements the NO_PROXY grammar: "*" for everything,
// "*.suffix"/".suffix" for domain-suffix matching (matching the bare
// suffix too), an exact hostname/IP, or CIDR notation for either IPv4
// or IPv6. IPv6 literals may be wrapped in brackets.
func (c Config) shouldBypass(host string) bool {
	if c.NoProxy == nil {
		return false
	}
	hostLower := strings.ToLower(host)
	hostForIP := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	hostIP := net.ParseIP(hostForIP)

	for _, raw := range strings.Split(*c.NoProxy, ",") {
		pattern := strings.ToLower(strings.TrimSpace(raw))
		if pattern == "" {
			continue
		}
		if pattern == "*" {
			return true
		}
		if strings.Contains(pattern, "/") {
			if _, network, err := net.ParseCIDR(pattern); err == nil {
				if hostIP != nil && network.Contains(hostIP) {
					return true
				}
			}
			continue
		}
		if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
			if strings.HasSuffix(hostLower, "."+suffix) || hostLower == suffix {
				return true
			}
			continue
		}
		if suffix, ok := strings.CutPrefix(pattern, "."); ok {
			if strings.HasSuffix(hostLower, pattern) || hostLower == suffix {
				return true
			}
			continue
		}
		if hostLower == pattern {
			return true
		}
	}
	return false
}
