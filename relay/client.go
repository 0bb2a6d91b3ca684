// Package relay implements the message-store client: the header cache and
// wall-clock-cooperative sync, plus the relay's GET/POST endpoints. Ported
// from ciphrtxt-lib's ciphrtxt/network.py (OnionHost, MsgStore), with the
// Tornado async client replaced by the blocking Transport interface —
// network I/O is a suspension point, not a callback chain.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
	"github.com/ciphrtxt/go-ciphrtxt/message"
	"github.com/ciphrtxt/go-ciphrtxt/onion"
)

// DefaultPort is the relay's default listening port (network.py's
// OnionHost.__init__ default).
const DefaultPort = 7754

// CacheExpire is how long a clean header cache is trusted before the next
// GetHeaders call forces a sync.
const CacheExpire = 5 * time.Second

const (
	statusPath       = "api/status/"
	serverTimePath   = "api/time/"
	headersSincePath = "api/header/list/since/"
	downloadMsgPath  = "api/message/download/"
	uploadMsgPath    = "api/message/upload/"
	peerListPath     = "api/peer/list/"
)

// ErrNotFound is returned by GetMessage when the header isn't present in
// the local cache.
var ErrNotFound = errors.New("relay: header not present in cache")

// Client is a single relay connection: address, key, transport, and the
// header cache. One mutex per Client guards the cache.
type Client struct {
	Node      *onion.Node
	Transport Transport

	ctx *curve.Context

	mu         sync.Mutex
	headers    []*message.Header
	cacheDirty bool
	lastSync   time.Time
	serverTime uint32
}

// NewClient returns a Client pointed at host:port with no key yet known;
// the first Refresh (direct or implicit, via GetHeaders/Peers) populates
// Node.Pkey.
func NewClient(ctx *curve.Context, host string, port int) *Client {
	return &Client{
		Node:       &onion.Node{Host: host, Port: port},
		Transport:  NewHTTPTransport(),
		ctx:        ctx,
		cacheDirty: true,
	}
}

func (c *Client) baseURL() string {
	return fmt.Sprintf("http://%s:%d/", c.Node.Host, c.Node.Port)
}

// Refresh fetches the relay's long-term public key from GET /api/status/
// (network.py's OnionHost.refresh).
func (c *Client) Refresh(goctx context.Context) error {
	body, err := c.Transport.Get(goctx, c.baseURL()+statusPath)
	if err != nil {
		return err
	}
	var resp struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: status response: %v", ErrTransport, err)
	}
	pub, err := c.ctx.DecompressHex(resp.Pubkey)
	if err != nil {
		return fmt.Errorf("%w: status pubkey: %v", ErrTransport, err)
	}
	c.Node.Pkey = pub
	return nil
}

// Peers fetches the relay's known peer list (network.py's get_peers).
func (c *Client) Peers(goctx context.Context) ([]string, error) {
	if c.Node.Pkey == nil {
		if err := c.Refresh(goctx); err != nil {
			return nil, err
		}
	}
	body, err := c.Transport.Get(goctx, c.baseURL()+peerListPath)
	if err != nil {
		return nil, err
	}
	var peers []string
	if err := json.Unmarshal(body, &peers); err != nil {
		return nil, fmt.Errorf("%w: peer list: %v", ErrTransport, err)
	}
	return peers, nil
}

// syncHeaders skips work if the cache is clean and recently synced;
// otherwise it evicts expired headers, fetches new ones since the last
// known server time, and merges and resorts the cache.
func (c *Client) syncHeaders(goctx context.Context) error {
	if c.Node.Pkey == nil {
		if err := c.Refresh(goctx); err != nil {
			return err
		}
	}

	c.mu.Lock()
	needsSync := c.cacheDirty || time.Since(c.lastSync) >= CacheExpire
	c.mu.Unlock()
	if !needsSync {
		return nil
	}

	body, err := c.Transport.Get(goctx, c.baseURL()+serverTimePath)
	if err != nil {
		return err
	}
	var timeResp struct {
		Time uint32 `json:"time"`
	}
	if err := json.Unmarshal(body, &timeResp); err != nil {
		return fmt.Errorf("%w: time response: %v", ErrTransport, err)
	}

	c.mu.Lock()
	kept := c.headers[:0:0]
	for _, h := range c.headers {
		if timeResp.Time <= h.Expire {
			kept = append(kept, h)
		}
	}
	c.headers = kept
	c.lastSync = time.Now()
	c.mu.Unlock()

	sincePath := fmt.Sprintf("%s%s%d", c.baseURL(), headersSincePath, c.serverTime)
	body, err = c.Transport.Get(goctx, sincePath)
	if err != nil {
		return err
	}
	var listResp struct {
		HeaderList []string `json:"header_list"`
	}
	if err := json.Unmarshal(body, &listResp); err != nil {
		return fmt.Errorf("%w: header list: %v", ErrTransport, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.serverTime = timeResp.Time
	c.cacheDirty = false
	for i := len(listResp.HeaderList) - 1; i >= 0; i-- {
		hdr, err := message.ParseHeader(c.ctx, listResp.HeaderList[i])
		if err != nil {
			continue
		}
		if !c.containsLocked(hdr) {
			c.headers = append([]*message.Header{hdr}, c.headers...)
		}
	}
	sort.SliceStable(c.headers, func(i, j int) bool {
		return c.headers[j].Less(c.ctx, c.headers[i])
	})
	return nil
}

func (c *Client) containsLocked(hdr *message.Header) bool {
	for _, h := range c.headers {
		if h.Equal(c.ctx, hdr) {
			return true
		}
	}
	return false
}

// GetHeaders returns a snapshot of the synced header cache, most recent
// first.
func (c *Client) GetHeaders(goctx context.Context) ([]*message.Header, error) {
	if err := c.syncHeaders(goctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*message.Header, len(c.headers))
	copy(out, c.headers)
	return out, nil
}

// GetMessage downloads the full message for hdr, failing with ErrNotFound
// if hdr isn't (after a sync) present in the local cache.
func (c *Client) GetMessage(goctx context.Context, hdr *message.Header) (*message.Message, error) {
	if err := c.syncHeaders(goctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	present := c.containsLocked(hdr)
	c.mu.Unlock()
	if !present {
		return nil, ErrNotFound
	}

	idHex := c.ctx.CompressHex(hdr.I)
	body, err := c.Transport.Get(goctx, c.baseURL()+downloadMsgPath+idHex)
	if err != nil {
		return nil, err
	}
	return message.Deserialize(c.ctx, string(body))
}

// PostMessage uploads msg, then inserts its header locally and marks the
// cache dirty so the next GetHeaders/GetMessage call refreshes.
func (c *Client) PostMessage(goctx context.Context, msg *message.Message) error {
	raw := msg.Serialize(c.ctx)
	if _, err := c.Transport.PostMultipart(goctx, c.baseURL()+uploadMsgPath, "message", []byte(raw)); err != nil {
		return err
	}

	hdr := msg.Header
	c.mu.Lock()
	if !c.containsLocked(&hdr) {
		c.headers = append([]*message.Header{&hdr}, c.headers...)
	}
	c.cacheDirty = true
	c.mu.Unlock()
	return nil
}
