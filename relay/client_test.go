package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
	"github.com/ciphrtxt/go-ciphrtxt/keys"
	"github.com/ciphrtxt/go-ciphrtxt/message"
)

// fakeTransport serves canned responses keyed by URL prefix, so tests can
// exercise Client's caching logic without a real HTTP server.
type fakeTransport struct {
	responses map[string][]byte
	posts     int
}

func (f *fakeTransport) Get(_ context.Context, url string) ([]byte, error) {
	for prefix, body := range f.responses {
		if strings.HasPrefix(url, prefix) {
			return body, nil
		}
	}
	return nil, fmt.Errorf("fakeTransport: no response for %s", url)
}

func (f *fakeTransport) PostMultipart(_ context.Context, url, fieldName string, body []byte) ([]byte, error) {
	f.posts++
	return []byte(`{"status":"ok"}`), nil
}

func sampleHeaderString(t *testing.T, ctx *curve.Context, now int64) (*message.Header, string) {
	t.Helper()
	sk, err := keys.Randomize(ctx, 1, now)
	if err != nil {
		t.Fatalf("Randomize: %v", err)
	}
	pk, err := sk.CalcPublicKey(ctx)
	if err != nil {
		t.Fatalf("CalcPublicKey: %v", err)
	}
	m, err := message.Encode(context.Background(), ctx, []byte("hello"), pk, nil, message.Options{Version: message.V1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return &m.Header, m.Serialize(ctx)
}

func TestClientGetHeadersSyncsAndCaches(t *testing.T) {
	ctx := curve.NewContext()
	now := time.Now().Unix()
	hdr, wire := sampleHeaderString(t, ctx, now)
	headerOnly := strings.Join(strings.Split(wire, ":")[:6], ":")

	var pubHex string
	{
		priv, err := curve.RandScalar()
		if err != nil {
			t.Fatalf("RandScalar: %v", err)
		}
		pub, err := ctx.ScalarBaseMult(priv)
		if err != nil {
			t.Fatalf("ScalarBaseMult: %v", err)
		}
		pubHex = ctx.CompressHex(pub)
	}

	statusBody, _ := json.Marshal(map[string]string{"pubkey": pubHex})
	timeBody, _ := json.Marshal(map[string]uint32{"time": uint32(now)})
	listBody, _ := json.Marshal(map[string][]string{"header_list": {headerOnly}})

	ft := &fakeTransport{responses: map[string][]byte{
		"http://relay.example:7754/api/status/":            statusBody,
		"http://relay.example:7754/api/time/":               timeBody,
		"http://relay.example:7754/api/header/list/since/": listBody,
	}}

	c := NewClient(ctx, "relay.example", DefaultPort)
	c.Transport = ft

	got, err := c.GetHeaders(context.Background())
	if err != nil {
		t.Fatalf("GetHeaders: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 header, got %d", len(got))
	}
	if !got[0].Equal(ctx, hdr) {
		t.Fatalf("returned header does not match encoded header")
	}

	// A second call within CacheExpire should not need another header-list
	// fetch; drop that response out from under it and confirm it still
	// returns the cached view rather than erroring.
	delete(ft.responses, "http://relay.example:7754/api/header/list/since/")
	got2, err := c.GetHeaders(context.Background())
	if err != nil {
		t.Fatalf("GetHeaders (cached): %v", err)
	}
	if len(got2) != 1 {
		t.Fatalf("expected cached header to survive, got %d", len(got2))
	}
}

func TestClientPostMessageMarksDirty(t *testing.T) {
	ctx := curve.NewContext()
	now := time.Now().Unix()
	sk, err := keys.Randomize(ctx, 1, now)
	if err != nil {
		t.Fatalf("Randomize: %v", err)
	}
	pk, err := sk.CalcPublicKey(ctx)
	if err != nil {
		t.Fatalf("CalcPublicKey: %v", err)
	}
	m, err := message.Encode(context.Background(), ctx, []byte("hi"), pk, nil, message.Options{Version: message.V1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var pubHex string
	{
		priv, err := curve.RandScalar()
		if err != nil {
			t.Fatalf("RandScalar: %v", err)
		}
		pub, err := ctx.ScalarBaseMult(priv)
		if err != nil {
			t.Fatalf("ScalarBaseMult: %v", err)
		}
		pubHex = ctx.CompressHex(pub)
	}
	statusBody, _ := json.Marshal(map[string]string{"pubkey": pubHex})
	ft := &fakeTransport{responses: map[string][]byte{
		"http://relay.example:7754/api/status/": statusBody,
	}}

	c := NewClient(ctx, "relay.example", DefaultPort)
	c.Transport = ft

	if err := c.PostMessage(context.Background(), m); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if ft.posts != 1 {
		t.Fatalf("expected exactly one multipart post, got %d", ft.posts)
	}

	c.mu.Lock()
	dirty := c.cacheDirty
	n := len(c.headers)
	c.mu.Unlock()
	if !dirty {
		t.Fatalf("expected cache to be marked dirty after posting")
	}
	if n != 1 {
		t.Fatalf("expected posted header inserted locally, got %d headers", n)
	}
}

func TestClientGetMessageRejectsUnknownHeader(t *testing.T) {
	ctx := curve.NewContext()
	now := time.Now().Unix()
	hdr, _ := sampleHeaderString(t, ctx, now)

	var pubHex string
	{
		priv, err := curve.RandScalar()
		if err != nil {
			t.Fatalf("RandScalar: %v", err)
		}
		pub, err := ctx.ScalarBaseMult(priv)
		if err != nil {
			t.Fatalf("ScalarBaseMult: %v", err)
		}
		pubHex = ctx.CompressHex(pub)
	}
	statusBody, _ := json.Marshal(map[string]string{"pubkey": pubHex})
	timeBody, _ := json.Marshal(map[string]uint32{"time": uint32(now)})
	listBody, _ := json.Marshal(map[string][]string{"header_list": {}})

	ft := &fakeTransport{responses: map[string][]byte{
		"http://relay.example:7754/api/status/":            statusBody,
		"http://relay.example:7754/api/time/":               timeBody,
		"http://relay.example:7754/api/header/list/since/": listBody,
	}}

	c := NewClient(ctx, "relay.example", DefaultPort)
	c.Transport = ft

	if _, err := c.GetMessage(context.Background(), hdr); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
