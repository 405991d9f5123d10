package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/indexer"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/synthesis"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
)

const (
	toolAskDocuments  = "ask_documents"
	toolIndexDocument = "index_document"
)

type askInput struct {
	Question string `json:"question" jsonschema:"The question to answer from the tenant's documents"`
}

type askOutput struct {
	Answer  string             `json:"answer" jsonschema:"Answer grounded in the retrieved documents"`
	Sources []synthesis.Source `json:"sources" jsonschema:"Retrieved chunks with a content preview, metadata and similarity"`
}

type indexInput struct {
	Text string `json:"text" jsonschema:"Document text to chunk, embed and store for this tenant"`
}

type indexOutput struct {
	Tenant string   `json:"tenant" jsonschema:"Tenant the chunks were tagged with"`
	Chunks int      `json:"chunks" jsonschema:"Number of chunks stored"`
	IDs    []string `json:"ids" jsonschema:"Record IDs of the stored chunks"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolAskDocuments,
		Description: "Answer a question using only this tenant's indexed documents. Returns the answer and the source chunks it was based on. When nothing relevant is indexed, a fixed fallback answer is returned with no sources.",
	}, s.handleAsk)

	if s.service.CanIndex() {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        toolIndexDocument,
			Description: "Index a text document for this tenant so later questions can be answered from it.",
		}, s.handleIndex)
	}
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, args askInput) (*mcp.CallToolResult, askOutput, error) {
	if strings.TrimSpace(args.Question) == "" {
		return nil, askOutput{}, fmt.Errorf("question is required")
	}

	var out askOutput
	err := s.instrument(ctx, toolAskDocuments, func(ctx context.Context) error {
		answer, err := s.service.GenerateAnswer(ctx, args.Question, s.tenant)
		if err != nil {
			return err
		}
		out = askOutput{Answer: answer.Answer, Sources: answer.Sources}
		return nil
	})
	if err != nil {
		return nil, askOutput{}, err
	}
	if out.Sources == nil {
		out.Sources = []synthesis.Source{}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: out.Answer}},
	}, out, nil
}

func (s *Server) handleIndex(ctx context.Context, _ *mcp.CallToolRequest, args indexInput) (*mcp.CallToolResult, indexOutput, error) {
	if strings.TrimSpace(args.Text) == "" {
		return nil, indexOutput{}, fmt.Errorf("text is required")
	}

	var res indexer.Result
	err := s.instrument(ctx, toolIndexDocument, func(ctx context.Context) error {
		var err error
		res, err = s.service.Index(ctx, args.Text, s.tenant)
		return err
	})
	if err != nil {
		return nil, indexOutput{}, err
	}

	out := indexOutput{Tenant: res.Tenant, Chunks: res.Chunks, IDs: res.IDs}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Indexed %d chunk(s) for %s", res.Chunks, res.Tenant)}},
	}, out, nil
}

// instrument scopes ctx to the server's tenant and records the call.
func (s *Server) instrument(ctx context.Context, tool string, fn func(context.Context) error) error {
	ctx = tenant.WithTenant(ctx, s.tenant)
	ctx = logging.WithTenant(ctx, s.tenant)

	done := s.metrics.start(ctx, tool)
	err := fn(ctx)
	done(err)

	if err != nil {
		s.logger.Warn("tool call failed", zap.String("tool", tool), zap.Error(err))
	}
	return err
}
