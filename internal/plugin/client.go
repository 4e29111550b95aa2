package plugin

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/felixgeelhaar/recall/internal/command"
	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/hashicorp/go-plugin"
)

// Handler exposes a plugin executable as a command.Handler.
type Handler struct {
	cfg    config.PluginConfig
	tool   *RPCClient
	client *plugin.Client
	obs    *observe.Observer
}

// Launch starts the executable and dispenses its tool.
func Launch(cfg config.PluginConfig, obs *observe.Observer) (*Handler, error) {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         map[string]plugin.Plugin{PluginName: &ToolPlugin{}},
		Cmd:             exec.Command(cfg.Path, cfg.Args...),
		Managed:         true,
	})
	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("start plugin %s: %w", cfg.Path, err)
	}
	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispense plugin %s: %w", cfg.Path, err)
	}
	tool, ok := raw.(*RPCClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin %s: unexpected type %T", cfg.Path, raw)
	}
	h := newHandler(cfg, tool, obs)
	h.client = client
	return h, nil
}

func newHandler(cfg config.PluginConfig, tool *RPCClient, obs *observe.Observer) *Handler {
	return &Handler{cfg: cfg, tool: tool, obs: obs}
}

func (h *Handler) Spec() command.Spec {
	required := make([][]string, 0, len(h.cfg.Required))
	for _, key := range h.cfg.Required {
		required = append(required, []string{key})
	}
	desc := h.cfg.Description
	if desc == "" {
		desc = "External tool " + h.cfg.Path
	}
	return command.Spec{
		Tag:         h.cfg.Tag,
		Description: desc,
		Required:    required,
		Ephemeral:   h.cfg.Ephemeral,
	}
}

func (h *Handler) Handle(ctx context.Context, inv *command.Invocation) (string, error) {
	resp, err := h.tool.InvokeContext(ctx, Request{Tag: inv.Tag, Args: inv.Args, Body: inv.Body})
	if err != nil {
		return "", fmt.Errorf("plugin %s: %w", h.cfg.Tag, err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("plugin %s: %w", h.cfg.Tag, errors.New(resp.Error))
	}
	h.obs.Log().Debug().Str("tag", h.cfg.Tag).Int("chars", len(resp.Text)).Msg("plugin replied")
	return resp.Text, nil
}

// Close stops the executable.
func (h *Handler) Close() {
	if h.client != nil {
		h.client.Kill()
	}
}

// LaunchAll starts every declared plugin. On failure the ones already
// started are stopped.
func LaunchAll(cfgs []config.PluginConfig, obs *observe.Observer) ([]*Handler, error) {
	var handlers []*Handler
	for _, cfg := range cfgs {
		h, err := Launch(cfg, obs)
		if err != nil {
			for _, started := range handlers {
				started.Close()
			}
			return nil, err
		}
		obs.Log().Info().Str("tag", cfg.Tag).Str("path", cfg.Path).Msg("plugin started")
		handlers = append(handlers, h)
	}
	return handlers, nil
}
