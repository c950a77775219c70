package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/brettbedarf/h5browse"
	"github.com/brettbedarf/h5browse/internal/util"
)

// HTTPClient is the subset of [http.Client] used to fetch remote containers
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSource opens containers published over http(s). The object is downloaded
// to a temp file once and then served by the store registered for the URL's
// extension, so remote files browse exactly like local ones.
type HTTPSource struct {
	Headers map[string]string
	Timeout time.Duration // Zero means no timeout
	Client  HTTPClient    // Default is http.DefaultClient
}

// RegisterHTTP registers src for the http:// and https:// schemes. Calling it
// again replaces the previous source, which is how config-provided headers and
// timeouts are applied.
func RegisterHTTP(src HTTPSource) {
	Register(HTTPStoreType, src.Open, "http://", "https://")
}

// Open fetches rawURL and opens the downloaded copy. Remote containers are
// read-only.
func (h HTTPSource) Open(rawURL string, mode h5browse.Mode) (h5browse.ContainerStore, error) {
	logger := util.GetLogger("HTTPSource.Open")

	if mode == h5browse.ReadWrite {
		return nil, h5browse.NewStoreError("open", rawURL, fmt.Errorf("%w: http sources are read-only", h5browse.ErrPermission))
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, h5browse.NewStoreError("open", rawURL, fmt.Errorf("%w: invalid url", h5browse.ErrNotFound))
	}
	innerType, err := Detect(u.Path)
	if err != nil {
		return nil, h5browse.NewStoreError("open", rawURL, fmt.Errorf("%w: %w", h5browse.ErrFormat, err))
	}

	ctx := context.Background()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	tmp, err := h.download(ctx, rawURL, path.Ext(u.Path))
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("url", rawURL).Str("tmp", tmp).Str("store", innerType).Msg("Downloaded remote container")

	inner, err := Open(innerType, tmp, h5browse.ReadOnly)
	if err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	return &remoteStore{ContainerStore: inner, url: rawURL, tmp: tmp}, nil
}

func (h HTTPSource) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

func (h HTTPSource) client() HTTPClient {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

// download streams the response body into a temp file and returns its path
func (h HTTPSource) download(ctx context.Context, rawURL, ext string) (string, error) {
	req, err := h.newRequest(ctx, rawURL)
	if err != nil {
		return "", h5browse.NewStoreError("open", rawURL, err)
	}

	resp, err := h.client().Do(req)
	if err != nil {
		return "", h5browse.NewStoreError("open", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", h5browse.NewStoreError("open", rawURL, fmt.Errorf("%w: %s", h5browse.ErrNotFound, resp.Status))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", h5browse.NewStoreError("open", rawURL, fmt.Errorf("%w: %s", h5browse.ErrPermission, resp.Status))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", h5browse.NewStoreError("open", rawURL, fmt.Errorf("unexpected status %s", resp.Status))
	}

	f, err := os.CreateTemp("", "h5browse-*"+ext)
	if err != nil {
		return "", h5browse.NewStoreError("open", rawURL, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", h5browse.NewStoreError("open", rawURL, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", h5browse.NewStoreError("open", rawURL, err)
	}
	return f.Name(), nil
}

// remoteStore reports the source URL as its path and removes the downloaded
// copy on Close
type remoteStore struct {
	h5browse.ContainerStore
	url string
	tmp string
}

func (r *remoteStore) Path() string { return r.url }

func (r *remoteStore) Close() error {
	err := r.ContainerStore.Close()
	if rmErr := os.Remove(r.tmp); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}
