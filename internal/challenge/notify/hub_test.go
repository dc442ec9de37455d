package notify

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/challenge"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

func newHubClient(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()

	hub := NewHub(logger.Nop())
	t.Cleanup(hub.Close)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws/scoreboard", hub.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/scoreboard"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	// Registration happens on the server goroutine after the upgrade.
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
	return hub, conn
}

func TestHubBroadcastsSolve(t *testing.T) {
	hub, conn := newHubClient(t)

	solvedAt := time.Now().UTC()
	hub.ChallengeSolved(challenge.Notification{Key: "scoreBoard", SolvedAt: solvedAt})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var n challenge.Notification
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, "scoreBoard", n.Key)
	assert.True(t, solvedAt.Equal(n.SolvedAt))
}

func TestHubConcurrentFanOut(t *testing.T) {
	hub, conn := newHubClient(t)

	// Concurrent solve transitions all notify through the same
	// connection; every frame must arrive intact.
	const solves = 50
	var wg sync.WaitGroup
	for i := 0; i < solves; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hub.ChallengeSolved(challenge.Notification{Key: fmt.Sprintf("challenge-%d", i)})
		}(i)
	}

	seen := make(map[string]struct{}, solves)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for len(seen) < solves {
		var n challenge.Notification
		require.NoError(t, conn.ReadJSON(&n))
		assert.NotContains(t, seen, n.Key, "no duplicate frames")
		seen[n.Key] = struct{}{}
	}
	wg.Wait()

	assert.Len(t, seen, solves)
	assert.Equal(t, 1, hub.ClientCount(), "no client dropped during fan-out")
}

func TestHubRemovesDeadClient(t *testing.T) {
	hub, conn := newHubClient(t)

	conn.Close()
	// The write to the closed connection fails and evicts the client.
	require.Eventually(t, func() bool {
		hub.ChallengeSolved(challenge.Notification{Key: "closed"})
		return hub.ClientCount() == 0
	}, 2*time.Second, 20*time.Millisecond)
}
