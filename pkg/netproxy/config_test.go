package netproxy

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestShouldBypassMixedPatterns(t *testing.T) {
	cfg := Config{
		HTTPProxy: strPtr("http://proxy:3128"),
		NoProxy:   strPtr("localhost,*.local,127.0.0.1,.example.com"),
	}
	require.True(t, cfg.shouldBypass("localhost"))
	require.True(t, cfg.shouldBypass("test.local"))
	require.True(t, cfg.shouldBypass("127.0.0.1"))
	require.True(t, cfg.shouldBypass("sub.example.com"))
	require.True(t, cfg.shouldBypass("example.com"))
	require.False(t, cfg.shouldBypass("example.org"))
	require.False(t, cfg.shouldBypass("proxy.example.org"))
}

func TestProxySelectionByScheme(t *testing.T) {
	cfg := Config{
		HTTPProxy:  strPtr("http://http-proxy:3128"),
		HTTPSProxy: strPtr("http://https-proxy:3128"),
		NoProxy:    strPtr("localhost"),
	}

	httpURL, _ := url.Parse("http://example.com")
	httpsURL, _ := url.Parse("https://example.com")
	localhostURL, _ := url.Parse("http://localhost")

	require.Equal(t, "http://http-proxy:3128", cfg.ProxyForURL(httpURL))
	require.Equal(t, "http://https-proxy:3128", cfg.ProxyForURL(httpsURL))
	require.Equal(t, "", cfg.ProxyForURL(localhostURL))
}

func TestAllProxyFallback(t *testing.T) {
	cfg := Config{AllProxy: strPtr("http://all-proxy:3128")}

	httpURL, _ := url.Parse("http://example.com")
	httpsURL, _ := url.Parse("https://example.com")

	require.Equal(t, "http://all-proxy:3128", cfg.ProxyForURL(httpURL))
	require.Equal(t, "http://all-proxy:3128", cfg.ProxyForURL(httpsURL))
}

func TestWildcardNoProxy(t *testing.T) {
	cfg := Config{HTTPProxy: strPtr("http://proxy:3128"), NoProxy: strPtr("*")}
	require.True(t, cfg.shouldBypass("anything.example.com"))
	require.True(t, cfg.shouldBypass("localhost"))
}

func TestNoProxyCIDRv4(t *testing.T) {
	cfg := Config{
		HTTPProxy: strPtr("http://proxy:3128"),
		NoProxy:   strPtr("192.168.0.0/16,10.0.0.0/8,172.16.0.0/12"),
	}
	require.True(t, cfg.shouldBypass("192.168.1.1"))
	require.True(t, cfg.shouldBypass("192.168.255.254"))
	require.True(t, cfg.shouldBypass("10.0.0.1"))
	require.True(t, cfg.shouldBypass("10.255.255.255"))
	require.True(t, cfg.shouldBypass("172.16.0.1"))
	require.True(t, cfg.shouldBypass("172.31.255.255"))

	require.False(t, cfg.shouldBypass("8.8.8.8"))
	require.False(t, cfg.shouldBypass("1.2.3.4"))
	require.False(t, cfg.shouldBypass("172.32.0.1"))
	require.False(t, cfg.shouldBypass("192.169.0.1"))
	require.False(t, cfg.shouldBypass("example.com"))
}

func TestNoProxyCIDRv6(t *testing.T) {
	cfg := Config{
		HTTPProxy: strPtr("http://proxy:3128"),
		NoProxy:   strPtr("fe80::/10,::1/128"),
	}
	require.True(t, cfg.shouldBypass("fe80::1"))
	require.True(t, cfg.shouldBypass("fe80::abcd:1234"))
	require.True(t, cfg.shouldBypass("::1"))

	require.False(t, cfg.shouldBypass("2001:db8::1"))
	require.False(t, cfg.shouldBypass("::2"))
}

func TestNoProxyBracketedIPv6(t *testing.T) {
	cfg := Config{NoProxy: strPtr("::1/128")}
	require.True(t, cfg.shouldBypass("[::1]"))
}

func TestMergeWithEnvPrefersExplicit(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://from-env:3128")
	cfg := Config{HTTPProxy: strPtr("http://explicit:3128")}
	merged := cfg.MergeWithEnv()
	require.Equal(t, "http://explicit:3128", *merged.HTTPProxy)
}

func TestMergeWithEnvFillsUnset(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://from-env:3128")
	merged := Config{}.MergeWithEnv()
	require.Equal(t, "http://from-env:3128", *merged.HTTPProxy)
}

func TestFromEnvPrefersUppercase(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://upper:3128")
	t.Setenv("http_proxy", "http://lower:3128")
	cfg := FromEnv()
	require.Equal(t, "http://upper:3128", *cfg.HTTPProxy)
}

func TestHasProxy(t *testing.T) {
	require.False(t, Config{}.HasProxy())
	require.True(t, Config{AllProxy: strPtr("http://p:3128")}.HasProxy())
}
