package browser

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectURL(t *testing.T) {
	raw := ConnectURL("49153", LaunchOptions{
		ContextKey: "persist:acc-1",
		Proxy:      "http://10.0.0.2:8080",
		Bounds:     Bounds{Width: 1366, Height: 768},
	})

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "ws", u.Scheme)
	assert.Equal(t, "localhost:49153", u.Host)
	q := u.Query()
	assert.Equal(t, "/data", q.Get("--user-data-dir"))
	assert.Equal(t, "http://10.0.0.2:8080", q.Get("--proxy-server"))
	assert.Equal(t, "1366,768", q.Get("--window-size"))
}

func TestConnectURLWithoutProxy(t *testing.T) {
	raw := ConnectURL("3000", LaunchOptions{ContextKey: "persist:x"})
	assert.NotContains(t, raw, "proxy-server")
	assert.NotContains(t, raw, "window-size")
}

func TestContainerNameIsSafe(t *testing.T) {
	name := containerName("persist:acc/1")
	assert.True(t, strings.HasPrefix(name, "hypercart-persist_acc_1-"))
	assert.NotEqual(t, name, containerName("persist:acc/1"))
}

func TestLocalAllocatorOptions(t *testing.T) {
	l := NewLocalLauncher("", true, nil)
	base := len(l.AllocatorOptions(LaunchOptions{UserDataDir: "/tmp/p"}))
	withProxy := len(l.AllocatorOptions(LaunchOptions{UserDataDir: "/tmp/p", Proxy: "socks5://h:1"}))
	assert.Equal(t, base+1, withProxy)

	l.ChromePath = "/usr/bin/chromium"
	assert.Equal(t, base+1, len(l.AllocatorOptions(LaunchOptions{UserDataDir: "/tmp/p"})))
}
