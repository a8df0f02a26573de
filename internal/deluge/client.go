package deluge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/types"
	"github.com/PBH-BTN/pbh-adapter-deluge/utils"
	"go.uber.org/zap"
)

// RPCError is an error reported by the remote end of a JSON-RPC call.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s failed (code %d): %s", e.Method, e.Code, e.Message)
}

// IsNotAuthenticated reports whether err is an RPC error for a missing web session.
func IsNotAuthenticated(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == types.RPCErrNotAuthenticated
}

// Client talks to the JSON endpoint of a Deluge web UI.
type Client struct {
	api      *utils.APIClient
	password string
	nextID   int64
	loginMu  sync.Mutex
}

func NewClient(api *utils.APIClient, password string) *Client {
	return &Client{
		api:      api,
		password: password,
	}
}

func (c *Client) BaseUrl() string {
	return c.api.BaseUrl()
}

func (c *Client) Jar() http.CookieJar {
	return c.api.Jar()
}

// Login opens a web session with the configured password.
func (c *Client) Login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	var ok bool
	if err := c.call(ctx, "auth.login", []interface{}{c.password}, &ok); err != nil {
		return err
	}
	if !ok {
		zap.L().Error("Deluge web login rejected", zap.String("url", c.api.BaseUrl()))
		return fmt.Errorf("login rejected by %s", c.api.BaseUrl())
	}
	zap.L().Info("Logged in to Deluge web", zap.String("url", c.api.BaseUrl()))
	return nil
}

// Call invokes method with params and decodes the result into out.
// A call rejected for a missing session logs in once and is retried.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	err := c.call(ctx, method, params, out)
	if !IsNotAuthenticated(err) {
		return err
	}

	zap.L().Debug("Web session missing, logging in", zap.String("method", method))
	if err := c.Login(ctx); err != nil {
		return fmt.Errorf("failed to login before %s: %w", method, err)
	}
	return c.call(ctx, method, params, out)
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(struct {
		Method string        `json:"method"`
		Params []interface{} `json:"params"`
		ID     int64         `json:"id"`
	}{
		Method: method,
		Params: params,
		ID:     atomic.AddInt64(&c.nextID, 1),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	resp, err := c.api.DoRequest(ctx, utils.RequestOptions{
		Method:      http.MethodPost,
		Endpoint:    "/json",
		Body:        body,
		ContentType: "application/json",
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var response types.RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		zap.L().Error("Failed to decode rpc response", zap.String("method", method), zap.Error(err))
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if response.Error != nil {
		return &RPCError{Method: method, Code: response.Error.Code, Message: response.Error.Message}
	}

	if out == nil || len(response.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(response.Result, out); err != nil {
		zap.L().Error("Failed to decode rpc result", zap.String("method", method), zap.Error(err))
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func pluginMethod(name string) string {
	return types.RPCNamespace + "." + name
}

// GetBlocklist returns every IP currently banned by the adapter core.
func (c *Client) GetBlocklist(ctx context.Context) (*types.BlocklistResponse, error) {
	var response types.BlocklistResponse
	if err := c.Call(ctx, pluginMethod("get_blocklist"), nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// ReplaceBlocklist replaces the whole ban list with ips.
func (c *Client) ReplaceBlocklist(ctx context.Context, ips []string) error {
	return c.Call(ctx, pluginMethod("replace_blocklist"), []interface{}{ips}, nil)
}

func (c *Client) BanIPs(ctx context.Context, ips []string) error {
	return c.Call(ctx, pluginMethod("ban_ips"), []interface{}{ips}, nil)
}

func (c *Client) UnbanIPs(ctx context.Context, ips []string) error {
	return c.Call(ctx, pluginMethod("unban_ips"), []interface{}{ips}, nil)
}

func (c *Client) GetConfig(ctx context.Context) (*types.ConfigResponse, error) {
	var response types.ConfigResponse
	if err := c.Call(ctx, pluginMethod("get_config"), nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *Client) SetConfig(ctx context.Context, cfg map[string]interface{}) error {
	return c.Call(ctx, pluginMethod("set_config"), []interface{}{cfg}, nil)
}
