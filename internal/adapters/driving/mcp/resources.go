package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

// uriScheme is the URI scheme of yard resources.
const uriScheme = "yard://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "config",
		Name:        "config",
		Description: "Cache strategy, level and backend of the yard",
		MIMEType:    "application/json",
	}, s.handleConfigResource)

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "sources",
		Name:        "sources",
		Description: "Indexing sources and their progress",
		MIMEType:    "application/json",
	}, s.handleSourcesResource)

	// Entity ids are URIs, so the template uses reserved expansion.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "entities/{+id}",
		Name:        "entity",
		Description: "A stored entity representation",
		MIMEType:    "application/json",
	}, s.handleEntityResource)
}

func (s *Server) handleConfigResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	cfg := s.ports.Yard.Config()

	info := struct {
		ID         string   `json:"id"`
		Name       string   `json:"name"`
		Strategy   string   `json:"strategy"`
		Level      string   `json:"level"`
		BaseFields []string `json:"base_fields,omitempty"`
		Backend    string   `json:"backend"`
		Upstream   string   `json:"upstream,omitempty"`
	}{
		ID:         cfg.ID,
		Name:       cfg.Name,
		Strategy:   cfg.Strategy.String(),
		Level:      cfg.Level.String(),
		BaseFields: cfg.BaseFields,
		Backend:    string(cfg.Backend.Type),
		Upstream:   cfg.Upstream,
	}
	return jsonResult(req.Params.URI, info)
}

func (s *Server) handleSourcesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	type sourceInfo struct {
		ID        string `json:"id"`
		Running   bool   `json:"running"`
		Epoch     int64  `json:"epoch"`
		Revision  int64  `json:"revision"`
		LastError string `json:"last_error,omitempty"`
	}

	infos := make([]sourceInfo, 0, len(s.ports.Sources))
	for _, id := range s.ports.Sources {
		info := sourceInfo{ID: id}
		if s.ports.Indexer != nil {
			status, err := s.ports.Indexer.Status(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("reading status of %s: %w", id, err)
			}
			info.Running = status.Running
			info.Epoch = status.Epoch
			info.Revision = status.Revision
			info.LastError = status.LastError
		}
		infos = append(infos, info)
	}
	return jsonResult(req.Params.URI, infos)
}

func (s *Server) handleEntityResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	id := extractEntityID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	rep, err := s.ports.Yard.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting entity: %w", err)
	}
	return jsonResult(req.Params.URI, rep)
}

// extractEntityID extracts the entity id from a URI like
// yard://entities/{id}. Percent-encoded ids are decoded.
func extractEntityID(uri string) string {
	const prefix = uriScheme + "entities/"

	id, ok := strings.CutPrefix(uri, prefix)
	if !ok {
		return ""
	}
	if decoded, err := url.PathUnescape(id); err == nil {
		return decoded
	}
	return id
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
