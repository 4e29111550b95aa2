// Package plugin lets external executables serve extra command tags. The
// host launches each declared executable with go-plugin and talks to it over
// net/rpc.
package plugin

import (
	"context"
	"net/rpc"

	"github.com/felixgeelhaar/recall/internal/command"
	"github.com/hashicorp/go-plugin"
)

// HandshakeConfig is used to handshake between host and plugin.
var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "RECALL_PLUGIN_MAGIC_COOKIE",
	MagicCookieValue: "recall-tool",
}

// PluginName is the key every tool executable serves under.
const PluginName = "tool"

// Request carries one parsed invocation across the process boundary.
type Request struct {
	Tag  string
	Args []command.Arg
	Body string
}

// Response is the tool's text, or a failure message.
type Response struct {
	Text  string
	Error string
}

// Tool is implemented by plugin executables.
type Tool interface {
	Invoke(req Request) (Response, error)
}

// ToolPlugin implements plugin.Plugin for Tool.
type ToolPlugin struct {
	Impl Tool
}

func (p *ToolPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

func (p *ToolPlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}

// RPCClient is the host side of the connection.
type RPCClient struct {
	client *rpc.Client
}

func (c *RPCClient) Invoke(req Request) (Response, error) {
	var resp Response
	err := c.client.Call("Plugin.Invoke", req, &resp)
	return resp, err
}

// InvokeContext abandons the call when ctx ends. The plugin keeps running
// the request; its reply is discarded.
func (c *RPCClient) InvokeContext(ctx context.Context, req Request) (Response, error) {
	var resp Response
	call := c.client.Go("Plugin.Invoke", req, &resp, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		return resp, call.Error
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// RPCServer is the plugin side of the connection.
type RPCServer struct {
	Impl Tool
}

func (s *RPCServer) Invoke(req Request, resp *Response) error {
	r, err := s.Impl.Invoke(req)
	if err != nil {
		r.Error = err.Error()
	}
	*resp = r
	return nil
}

// Serve runs impl as a plugin executable. It blocks until the host kills
// the process.
func Serve(impl Tool) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         map[string]plugin.Plugin{PluginName: &ToolPlugin{Impl: impl}},
	})
}
