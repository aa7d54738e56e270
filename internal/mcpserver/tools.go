package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/jobs"
)

const (
	// defaultWaitSeconds bounds how long scan_repository blocks before
	// handing back a non-terminal snapshot for polling.
	defaultWaitSeconds = 600

	pollEvery = 200 * time.Millisecond
)

// ScanRepositoryInput is the input schema for the scan_repository tool.
type ScanRepositoryInput struct {
	RepositoryURL string  `json:"repository_url" jsonschema:"Git repository URL to scan: https, ssh, scp-like, or an absolute local path"`
	Branch        string  `json:"branch,omitempty" jsonschema:"Branch to scan (default: the repository's default branch)"`
	Threshold     float64 `json:"threshold,omitempty" jsonschema:"Passing score threshold 0-100 (default: 70)"`
	WaitSeconds   int     `json:"wait_seconds,omitempty" jsonschema:"Max seconds to wait for completion before returning the in-progress status (default: 600)"`
}

// GetScanStatusInput is the input schema for the get_scan_status tool.
type GetScanStatusInput struct {
	ScanID string `json:"scan_id" jsonschema:"Scan identifier returned by scan_repository"`
}

// ListGatesInput is the input schema for the list_gates tool.
type ListGatesInput struct {
	Category string `json:"category,omitempty" jsonschema:"Filter gates by category (e.g. auditability, availability, error_handling, testing, security)"`
}

// scanPayload is the JSON body both scan tools hand back: the job
// snapshot plus, once the scan is done, the full per-gate result.
type scanPayload struct {
	Scan   jobs.Snapshot    `json:"scan"`
	Result *gate.ScanResult `json:"result,omitempty"`
}

// gateSummary is one catalog row in the list_gates output.
type gateSummary struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Category    string  `json:"category,omitempty"`
	Priority    string  `json:"priority"`
	Weight      float64 `json:"weight"`
	ScoringMode string  `json:"scoring_mode"`
	Patterns    int     `json:"patterns"`
	Description string  `json:"description,omitempty"`
}

// gateListing is the list_gates output envelope.
type gateListing struct {
	CatalogVersion string        `json:"catalog_version"`
	Gates          []gateSummary `json:"gates"`
}

// boolPtr returns a pointer to a bool.
func boolPtr(b bool) *bool { return &b }

// tools binds the handlers to the shared services.
type tools struct {
	service  ScanService
	registry *jobs.Registry
	library  libraryReader
}

// libraryReader is the catalog surface list_gates reads. *catalog.Library
// satisfies it.
type libraryReader interface {
	Gates() []gate.Definition
	Version() string
}

// registerTools adds all gatewarden tools to the MCP server.
func registerTools(server *mcp.Server, deps Deps) {
	t := &tools{service: deps.Service, registry: deps.Registry, library: deps.Library}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "scan_repository",
		Description: "Scan a git repository against the hard-gate catalog (logging, error handling, resilience, testing, security). Returns the overall score, per-gate evidence, and recommendations.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint:    true,
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(true),
		},
	}, t.scanRepository)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_scan_status",
		Description: "Look up a scan by ID: lifecycle status, progress, and the full gate results once the scan completes.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint:    true,
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.getScanStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_gates",
		Description: "List the gates in the active catalog with their category, priority, weight, and pattern counts.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint:    true,
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.listGates)
}

func (t *tools) scanRepository(ctx context.Context, _ *mcp.CallToolRequest, input ScanRepositoryInput) (*mcp.CallToolResult, any, error) {
	url, err := ValidateRepositoryURL(input.RepositoryURL)
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateBranch(input.Branch); err != nil {
		return nil, nil, err
	}
	if err := ValidateThreshold(input.Threshold); err != nil {
		return nil, nil, err
	}

	snap, err := t.service.Submit(gate.Request{
		RepositoryURL: url,
		Branch:        input.Branch,
		Threshold:     input.Threshold,
		ReportFormat:  "json",
	})
	if err != nil {
		// A scan already in flight for this repo and branch is a
		// result, not a failure: attach to it.
		var dup *jobs.DuplicateError
		if !errors.As(err, &dup) {
			return nil, nil, fmt.Errorf("submit scan: %w", err)
		}
		var ok bool
		snap, ok = t.registry.Get(dup.ScanID)
		if !ok {
			return nil, nil, fmt.Errorf("submit scan: %w", err)
		}
	}

	wait := time.Duration(input.WaitSeconds) * time.Second
	if wait <= 0 {
		wait = defaultWaitSeconds * time.Second
	}
	final := t.awaitScan(ctx, snap.ScanID, wait)
	return jsonResult(scanPayload{Scan: final, Result: final.Result})
}

// awaitScan polls the registry until the job turns terminal, the wait
// budget runs out, or the client goes away. It always returns the most
// recent snapshot it saw.
func (t *tools) awaitScan(ctx context.Context, scanID string, wait time.Duration) jobs.Snapshot {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(pollEvery)
	defer tick.Stop()

	for {
		snap, ok := t.registry.Get(scanID)
		if !ok || snap.Status.Terminal() {
			return snap
		}
		select {
		case <-ctx.Done():
			return snap
		case <-deadline.C:
			return snap
		case <-tick.C:
		}
	}
}

func (t *tools) getScanStatus(_ context.Context, _ *mcp.CallToolRequest, input GetScanStatusInput) (*mcp.CallToolResult, any, error) {
	id := strings.TrimSpace(input.ScanID)
	if id == "" {
		return nil, nil, fmt.Errorf("scan_id is required")
	}
	snap, ok := t.registry.Get(id)
	if !ok {
		return nil, nil, fmt.Errorf("scan %q not found", id)
	}
	return jsonResult(scanPayload{Scan: snap, Result: snap.Result})
}

func (t *tools) listGates(_ context.Context, _ *mcp.CallToolRequest, input ListGatesInput) (*mcp.CallToolResult, any, error) {
	category := strings.ToLower(strings.TrimSpace(input.Category))

	defs := t.library.Gates()
	out := make([]gateSummary, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		if category != "" && !strings.EqualFold(def.Category, category) {
			continue
		}
		out = append(out, gateSummary{
			Name:        def.Name,
			DisplayName: def.DisplayName,
			Category:    def.Category,
			Priority:    string(def.Priority),
			Weight:      def.Weight,
			ScoringMode: string(def.Scoring.Mode),
			Patterns:    def.PatternCount(),
			Description: def.Description,
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })

	return jsonResult(gateListing{CatalogVersion: t.library.Version(), Gates: out})
}

// jsonResult encodes v as the single text content of a tool result.
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}
