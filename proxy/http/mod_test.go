package http

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHTTP_Listen(t *testing.T) {
	proxy := NewHTTP("127.0.0.1:0")
	proxy.RegisterHandler(http.MethodGet, "/fake/{name}", fakeHandler)

	go proxy.Listen()
	waitAddr(t, proxy)

	defer proxy.Stop()

	res, err := http.Get("http://" + proxy.GetAddr().String() + "/fake/alice")
	require.NoError(t, err)

	defer res.Body.Close()

	output, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	require.Equal(t, "hello alice", string(output))
	require.NotEmpty(t, res.Header.Get("X-Request-Id"))
}

func TestHTTP_Listen_EmptyAddr(t *testing.T) {
	// in this case it will use a random free port
	proxy := NewHTTP("")

	require.Nil(t, proxy.GetAddr())

	go proxy.Listen()
	waitAddr(t, proxy)

	proxy.Stop()
}

func TestHTTP_Listen_BadAddr(t *testing.T) {
	proxy := NewHTTP("bad://xx")

	out := new(bytes.Buffer)
	proxy.logger = zerolog.New(out)

	defer func() {
		res := recover()
		require.Regexp(t, "^failed to create conn 'bad://xx':", res)
		require.Regexp(t, "failed to create conn 'bad://xx'", out.String())
	}()

	proxy.Listen()
}

func TestHTTP_NotFound(t *testing.T) {
	proxy := NewHTTP("127.0.0.1:0")

	go proxy.Listen()
	waitAddr(t, proxy)

	defer proxy.Stop()

	res, err := http.Get("http://" + proxy.GetAddr().String() + "/unknown")
	require.NoError(t, err)
	res.Body.Close()

	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestHTTP_CORS(t *testing.T) {
	proxy := NewHTTP("127.0.0.1:0", WithOrigins("https://contest.example"))
	proxy.RegisterHandler(http.MethodGet, "/fake/{name}", fakeHandler)

	go proxy.Listen()
	waitAddr(t, proxy)

	defer proxy.Stop()

	req, err := http.NewRequest(http.MethodGet, "http://"+proxy.GetAddr().String()+"/fake/bob", nil)
	require.NoError(t, err)

	req.Header.Set("Origin", "https://contest.example")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()

	require.Equal(t, "https://contest.example", res.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://other.example")

	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()

	require.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))
}

func TestHTTP_Metrics(t *testing.T) {
	proxy := NewHTTP("127.0.0.1:0")
	proxy.RegisterHandler(http.MethodGet, "/fake/{name}", fakeHandler)

	go proxy.Listen()
	waitAddr(t, proxy)

	defer proxy.Stop()

	counter := promRequests.WithLabelValues(http.MethodGet, "/fake/{name}", "200")
	before := testutil.ToFloat64(counter)

	res, err := http.Get("http://" + proxy.GetAddr().String() + "/fake/carol")
	require.NoError(t, err)
	res.Body.Close()

	require.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestHTTP_Listen_Again(t *testing.T) {
	proxy := NewHTTP("127.0.0.1:0")

	go proxy.Listen()
	waitAddr(t, proxy)
	proxy.Stop()

	require.Eventually(t, func() bool { return proxy.GetAddr() == nil }, time.Second, 10*time.Millisecond)
}

// -----------------------------------------------------------------------------
// Utility functions

func waitAddr(t *testing.T, proxy *HTTP) {
	require.Eventually(t, func() bool { return proxy.GetAddr() != nil }, time.Second, 10*time.Millisecond)
}

func fakeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("hello " + chi.URLParam(r, "name")))
}
