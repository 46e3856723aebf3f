package httptransport

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewServerDefaultsHeaderTimeout(t *testing.T) {
	srv := NewServer(ServerConfig{Address: ":0", ReadTimeout: 5 * time.Second}, http.NotFoundHandler())
	require.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
}

func TestChainOrderAndMiddlewares(t *testing.T) {
	var buf bytes.Buffer
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), mark("outer"), RequestLogger(log.New(&buf, "", 0)), CORS("https://focus.example.com"), mark("inner"))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/focus", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)
	require.Equal(t, []string{"outer", "inner"}, order)
	require.Equal(t, "https://focus.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, buf.String(), "GET /focus 418")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/focus", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
}
