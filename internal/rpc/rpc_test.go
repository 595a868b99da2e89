package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"testing"

	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/piwi3910/SlabNest/internal/nesting"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopHandler struct{}

func (noopHandler) Handle(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) {}

var testConfig = model.NestingConfig{SheetWidth: 100, SheetHeight: 100, MaxNoImprovement: 5, Spacing: 1}

// dial starts a server on one end of a pipe and returns a client on the other.
func dial(t *testing.T, pool *nesting.Pool) *jsonrpc2.Conn {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	serverSide, clientSide := net.Pipe()

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, serverSide, NewHandler(pool)) }()

	client := jsonrpc2.NewConn(ctx, jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}), noopHandler{})
	t.Cleanup(func() {
		client.Close()
		cancel()
		<-done
	})
	return client
}

func newPool(t *testing.T) *nesting.Pool {
	t.Helper()
	pool := nesting.NewPool(nesting.NewService(), nesting.PoolConfig{Workers: 2, QueueSize: 2}, nil)
	t.Cleanup(pool.Close)
	return pool
}

func rpcError(t *testing.T, err error) (*jsonrpc2.Error, ErrorData) {
	t.Helper()
	var rpcErr *jsonrpc2.Error
	require.True(t, errors.As(err, &rpcErr), "want *jsonrpc2.Error, got %v", err)
	var data ErrorData
	if rpcErr.Data != nil {
		require.NoError(t, json.Unmarshal(*rpcErr.Data, &data))
	}
	return rpcErr, data
}

func TestNest(t *testing.T) {
	client := dial(t, newPool(t))
	req := nesting.Request{
		Parts:  []model.Part{{ID: "sq", Outline: model.Rect(10, 10), Quantity: 2}},
		Config: testConfig,
	}

	var result model.NestingResult
	require.NoError(t, client.Call(context.Background(), "nest", req, &result))
	assert.NotEmpty(t, result.JobID)
	assert.Len(t, result.NestedParts, 2)
	assert.Equal(t, 1, result.SheetCount)
}

func TestNest_PartTooLarge(t *testing.T) {
	client := dial(t, newPool(t))
	req := nesting.Request{
		Parts:  []model.Part{{ID: "big", Outline: model.Rect(150, 150)}},
		Config: testConfig,
	}

	var result model.NestingResult
	err := client.Call(context.Background(), "nest", req, &result)
	rpcErr, data := rpcError(t, err)
	assert.Equal(t, int64(jsonrpc2.CodeInvalidParams), rpcErr.Code)
	assert.Equal(t, nesting.KindPartTooLarge, data.Kind)
	assert.Equal(t, "big", data.PartID)
}

func TestNest_InvalidConfigField(t *testing.T) {
	client := dial(t, newPool(t))
	cfg := testConfig
	cfg.RotationStep = 7
	req := nesting.Request{Parts: []model.Part{{ID: "a", Outline: model.Rect(10, 10)}}, Config: cfg}

	err := client.Call(context.Background(), "nest", req, nil)
	_, data := rpcError(t, err)
	assert.Equal(t, nesting.KindInvalidConfig, data.Kind)
	assert.Equal(t, "rotationStep", data.Field)
}

func TestNest_PoolClosed(t *testing.T) {
	pool := newPool(t)
	client := dial(t, pool)
	pool.Close()

	req := nesting.Request{Parts: []model.Part{{ID: "a", Outline: model.Rect(10, 10)}}, Config: testConfig}
	err := client.Call(context.Background(), "nest", req, nil)
	rpcErr, data := rpcError(t, err)
	assert.Equal(t, CodeBusy, rpcErr.Code)
	assert.Equal(t, nesting.KindBusy, data.Kind)
}

func TestExport(t *testing.T) {
	client := dial(t, newPool(t))
	parts := []model.Part{{ID: "sq", Outline: model.Rect(10, 10), Quantity: 2}}

	var result model.NestingResult
	require.NoError(t, client.Call(context.Background(), "nest", nesting.Request{Parts: parts, Config: testConfig}, &result))

	var svg string
	require.NoError(t, client.Call(context.Background(), "export", ExportParams{Format: "svg", Layout: result, Parts: parts}, &svg))
	assert.Contains(t, svg, "<svg")
	assert.Contains(t, svg, `data-part-id="sq"`)

	err := client.Call(context.Background(), "export", ExportParams{Format: "pdf", Layout: result, Parts: parts}, &svg)
	rpcErr, _ := rpcError(t, err)
	assert.Equal(t, int64(jsonrpc2.CodeInvalidParams), rpcErr.Code)
}

func TestExport_SheetIndexOutOfRange(t *testing.T) {
	client := dial(t, newPool(t))
	parts := []model.Part{{ID: "sq", Outline: model.Rect(10, 10)}}
	layout := model.NestingResult{
		Sheet:       model.Sheet{Width: 100, Height: 100},
		NestedParts: []model.Placement{{PartID: "sq", SheetIndex: math.MaxInt}},
	}

	var svg string
	err := client.Call(context.Background(), "export", ExportParams{Layout: layout, Parts: parts}, &svg)
	rpcErr, _ := rpcError(t, err)
	assert.Equal(t, int64(jsonrpc2.CodeInvalidParams), rpcErr.Code)

	var stats nesting.PoolStats
	require.NoError(t, client.Call(context.Background(), "status", nil, &stats))
	assert.Equal(t, 4, stats.Capacity)
}

func TestUnknownMethodAndMissingParams(t *testing.T) {
	client := dial(t, newPool(t))

	err := client.Call(context.Background(), "optimize", nil, nil)
	rpcErr, _ := rpcError(t, err)
	assert.Equal(t, int64(jsonrpc2.CodeMethodNotFound), rpcErr.Code)

	err = client.Call(context.Background(), "nest", nil, nil)
	rpcErr, _ = rpcError(t, err)
	assert.Equal(t, int64(jsonrpc2.CodeInvalidParams), rpcErr.Code)
}

func TestStatus(t *testing.T) {
	client := dial(t, newPool(t))
	var stats nesting.PoolStats
	require.NoError(t, client.Call(context.Background(), "status", nil, &stats))
	assert.Equal(t, 2, stats.Workers)
	assert.Equal(t, 4, stats.Capacity)
}
