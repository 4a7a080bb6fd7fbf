package lookup

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/avatard/kit"
	"github.com/hazyhaar/avatard/profile"
)

// Response is the wire shape of a lookup, shared by the HTTP and MCP surfaces.
type Response struct {
	Name     string  `json:"name"`
	Username string  `json:"username"`
	Avatar   *string `json:"avatar"`
	Blocked  bool    `json:"blocked"`
	Cached   bool    `json:"cached"`
}

// NewResponse converts a Result to its wire shape. Avatar is nil when absent.
func NewResponse(r profile.Result, cached bool) Response {
	resp := Response{
		Name:     r.DisplayName,
		Username: r.Identifier,
		Blocked:  r.Blocked,
		Cached:   cached,
	}
	if r.HasAvatar() {
		p := r.AvatarPath
		resp.Avatar = &p
	}
	return resp
}

type lookupReq struct {
	User string `json:"user"`
}

// RegisterMCP registers the profile_lookup tool on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "profile_lookup",
		Description: "Resolve a public profile handle to its display name and proxied avatar path.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user": map[string]any{"type": "string", "description": "Profile handle, with or without a leading @"},
			},
			"required": []string{"user"},
		},
	}

	endpoint := kit.Chain(kit.Logging(s.logger, "profile_lookup"))(
		func(ctx context.Context, req any) (any, error) {
			r := req.(*lookupReq)
			res, cached, err := s.Lookup(ctx, r.User)
			if err != nil {
				return nil, err
			}
			return NewResponse(res, cached), nil
		})

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r, err := kit.DecodeArgs[lookupReq](req)
		if err != nil {
			return nil, err
		}
		if r.User == "" {
			return nil, errors.New("user is required")
		}
		return &kit.MCPDecodeResult{Request: r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
