package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"

	"sourcery/internal/deobfuscate"
	"sourcery/internal/httputil"
	"sourcery/internal/media"
	"sourcery/internal/provider"
)

func newSite(t *testing.T, mux *http.ServeMux) (*httptest.Server, *provider.Scope) {
	t.Helper()
	srv := httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)
	return srv, &provider.Scope{
		Fetcher: httputil.Wrap(srv.Client(), ""),
		Log:     logrus.NewEntry(log),
	}
}

func serveFile(t *testing.T, name string) http.HandlerFunc {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("reading test fixture %s: %v", name, err)
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Write(data)
	}
}

var packWordRe = regexp.MustCompile(`\b\w+\b`)

// packScript wraps source in a radix-36 P.A.C.K.E.R. eval block.
func packScript(source string) string {
	index := map[string]int{}
	var symbols []string
	payload := packWordRe.ReplaceAllStringFunc(source, func(w string) string {
		i, ok := index[w]
		if !ok {
			i = len(symbols)
			index[w] = i
			symbols = append(symbols, w)
		}
		return deobfuscate.EncodeRadix(i, 36)
	})
	payload = strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(payload)
	return fmt.Sprintf(
		"<script type='text/javascript'>eval(function(p,a,c,k,e,d){while(c--)if(k[c])p=p.replace(new RegExp('\\\\b'+c.toString(a)+'\\\\b','g'),k[c]);return p}('%s',36,%d,'%s'.split('|')))</script>",
		payload, len(symbols), strings.Join(symbols, "|"))
}

func testScope() *provider.Scope {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &provider.Scope{Log: logrus.NewEntry(log)}
}

// countingFetcher counts the requests that pass through it. Without an inner
// fetcher every request fails.
type countingFetcher struct {
	inner provider.Fetcher
	hits  atomic.Int32
}

func (f *countingFetcher) Fetch(ctx context.Context, u string, opts httputil.Options) ([]byte, error) {
	f.hits.Add(1)
	if f.inner == nil {
		return nil, fmt.Errorf("%w: unexpected request to %s", media.ErrTransport, u)
	}
	return f.inner.Fetch(ctx, u, opts)
}

func (f *countingFetcher) FetchFull(ctx context.Context, u string, opts httputil.Options) (*httputil.Response, error) {
	f.hits.Add(1)
	if f.inner == nil {
		return nil, fmt.Errorf("%w: unexpected request to %s", media.ErrTransport, u)
	}
	return f.inner.FetchFull(ctx, u, opts)
}

// withProxy splits sc into a direct and a proxied fetcher that both reach the
// test server and count their requests.
func withProxy(sc *provider.Scope) (direct, proxied *countingFetcher) {
	direct = &countingFetcher{inner: sc.Fetcher}
	proxied = &countingFetcher{inner: sc.Fetcher}
	sc.Fetcher, sc.Proxied = direct, proxied
	return direct, proxied
}
