package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Play queues url; with wait set the call returns once playback has ended.
func (c *Client) Play(url string, wait bool) (*PlayResponse, error) {
	var resp PlayResponse
	if err := c.call("Play", PlayRequest{URL: url, Wait: wait}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop interrupts the current video.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History returns up to limit recent play events; zero means the default.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CacheList returns the cached videos and cache usage.
func (c *Client) CacheList() (*CacheListResponse, error) {
	var resp CacheListResponse
	if err := c.call("CacheList", CacheListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CachePrune trims the cache to its configured budget.
func (c *Client) CachePrune() (*CachePruneResponse, error) {
	var resp CachePruneResponse
	if err := c.call("CachePrune", CachePruneRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CacheRemove deletes one cached video.
func (c *Client) CacheRemove(videoID string) (*CacheRemoveResponse, error) {
	var resp CacheRemoveResponse
	if err := c.call("CacheRemove", CacheRemoveRequest{VideoID: videoID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log events from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.call("DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
