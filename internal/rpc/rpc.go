// Package rpc serves the nesting service as JSON-RPC 2.0 over a byte stream,
// framed with Content-Length headers.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/piwi3910/SlabNest/internal/export"
	"github.com/piwi3910/SlabNest/internal/logger"
	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/piwi3910/SlabNest/internal/nesting"
	"github.com/sourcegraph/jsonrpc2"
)

var log = logger.ForComponent("rpc")

// Error codes for nesting failures, in the JSON-RPC server error range.
const (
	CodeNestingFailed int64 = -32000
	CodeBusy          int64 = -32001
	CodeCancelled     int64 = -32002
)

// ExportParams are the parameters of the export method.
type ExportParams struct {
	Format string              `json:"format"`
	Layout model.NestingResult `json:"layout"`
	Parts  []model.Part        `json:"parts"`
}

// ErrorData is attached to every nesting error response.
type ErrorData struct {
	Kind   nesting.Kind `json:"kind"`
	PartID string       `json:"partId,omitempty"`
	Field  string       `json:"field,omitempty"`
}

// Handler dispatches JSON-RPC methods to the pool.
type Handler struct {
	pool *nesting.Pool
}

func NewHandler(pool *nesting.Pool) *Handler {
	return &Handler{pool: pool}
}

// Serve handles requests on rwc until the peer disconnects or ctx is done.
// Requests run concurrently; the pool bounds how many nest at once.
func Serve(ctx context.Context, rwc io.ReadWriteCloser, h *Handler) error {
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(h.handle)))
	log.Info("rpc connection open")

	select {
	case <-conn.DisconnectNotify():
		log.Info("rpc peer disconnected")
		return nil
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}
}

func (h *Handler) handle(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (result any, err error) {
	if req.Notif {
		return nil, nil
	}
	// Async handlers run on their own goroutine; a panic there would end the process.
	defer func() {
		if r := recover(); r != nil {
			log.Error("rpc handler panicked", "method", req.Method, "panic", r)
			result, err = nil, &jsonrpc2.Error{
				Code:    jsonrpc2.CodeInternalError,
				Message: fmt.Sprintf("internal error in %q", req.Method),
			}
		}
	}()
	log.Debug("rpc call", "method", req.Method)

	switch req.Method {
	case "nest":
		var params nesting.Request
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		result, err := h.pool.Nest(ctx, params)
		if err != nil {
			return nil, toRPCError(err)
		}
		return result, nil

	case "export":
		var params ExportParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		return exportSVG(params)

	case "status":
		return h.pool.Stats(), nil
	}

	return nil, &jsonrpc2.Error{
		Code:    jsonrpc2.CodeMethodNotFound,
		Message: fmt.Sprintf("method not found: %s", req.Method),
	}
}

func decodeParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil || string(bytes.TrimSpace(*req.Params)) == "null" {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

// exportSVG renders the layout as an SVG document. Binary formats are only
// available over HTTP.
func exportSVG(params ExportParams) (string, error) {
	format := params.Format
	if format == "" {
		format = string(export.FormatSVG)
	}
	if f, err := export.ParseFormat(format); err != nil || f != export.FormatSVG {
		return "", &jsonrpc2.Error{
			Code:    jsonrpc2.CodeInvalidParams,
			Message: fmt.Sprintf("unsupported export format %q: only svg is available", params.Format),
		}
	}

	var buf bytes.Buffer
	if err := export.RenderSVG(&buf, export.Job{Result: params.Layout, Parts: params.Parts}); err != nil {
		return "", &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return buf.String(), nil
}

// toRPCError converts a nesting failure into a JSON-RPC error carrying
// {kind, partId, field} as data.
func toRPCError(err error) error {
	if errors.Is(err, nesting.ErrPoolClosed) {
		err = &nesting.Error{Kind: nesting.KindBusy, Message: err.Error()}
	}
	ne, ok := nesting.AsError(err)
	if !ok {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
	}

	code := CodeNestingFailed
	switch ne.Kind {
	case nesting.KindInvalidConfig, nesting.KindInvalidPart, nesting.KindPartTooLarge:
		code = jsonrpc2.CodeInvalidParams
	case nesting.KindBusy:
		code = CodeBusy
	case nesting.KindCancelled:
		code = CodeCancelled
	}

	rpcErr := &jsonrpc2.Error{Code: code, Message: ne.Error()}
	rpcErr.SetError(ErrorData{Kind: ne.Kind, PartID: ne.PartID, Field: ne.Field})
	return rpcErr
}
