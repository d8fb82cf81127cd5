package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T) (*net.UDPConn, string) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, conn.LocalAddr().String()
}

func readLine(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestClient_Count(t *testing.T) {
	server, addr := listenUDP(t)

	client, err := NewClient(Config{Enabled: true, Address: addr, Prefix: "wa_reporting."})
	require.NoError(t, err)
	defer client.Close()

	client.Count("jobs.submitted", 1, map[string]string{"report": "checkins"})

	assert.Equal(t, "wa_reporting.jobs.submitted:1|c|#report:checkins", readLine(t, server))
}

func TestClient_Disabled(t *testing.T) {
	client, err := NewClient(Config{Enabled: false})
	require.NoError(t, err)

	// Must not panic or block without a connection.
	client.Count("jobs.submitted", 1, nil)
	client.Timing("jobs.duration", time.Second, nil)
	assert.NoError(t, client.Close())
}

func TestClient_NilReceiver(t *testing.T) {
	var client *Client
	client.Count("x", 1, nil)
	client.Timing("x", time.Second, nil)
	assert.NoError(t, client.Close())
}
