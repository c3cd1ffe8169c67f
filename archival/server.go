package archival

import (
	"context"
	"net/http"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/logx"
)

// --- Error type used by handlers ---

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func toJRPC2Error(e *rpcError) error {
	if e == nil {
		return nil
	}
	return jrpc2.Errorf(jrpc2.Code(e.Code), "%s", e.Message)
}

// --- Params/Results ---

type uploadBatchParams struct {
	Blocks []*block.Block `json:"blocks"`
}

type uploadBatchResponse struct {
	Accepted       int    `json:"accepted"`
	AlreadyPresent int    `json:"already_present"`
	Error          string `json:"error,omitempty"`
}

type getRangeParams struct {
	FromSlot uint64 `json:"from_slot"`
	ToSlot   uint64 `json:"to_slot"`
}

type getRangeResponse struct {
	Blocks []*block.Block `json:"blocks"`
}

type headResponse struct {
	Slot  uint64 `json:"slot"`
	Count uint64 `json:"count"`
}

// --- Server ---

// Server exposes an ArchiveStore over JSON-RPC 2.0 on HTTP.
type Server struct {
	addr  string
	store ArchiveStore

	httpServer *http.Server
}

func NewServer(addr string, store ArchiveStore) *Server {
	return &Server{
		addr:  addr,
		store: store,
	}
}

func (s *Server) Start() {
	methods := s.buildMethodMap()
	jh := jhttp.NewBridge(methods, &jhttp.BridgeOptions{Server: &jrpc2.ServerOptions{}})

	mux := http.NewServeMux()
	mux.Handle("/", jh)
	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		logx.Info("ARCHIVAL", "Archive server listening on", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Error("ARCHIVAL", "Archive server stopped:", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Build jrpc2 method map
func (s *Server) buildMethodMap() handler.Map {
	return handler.Map{
		"Archive.UploadBatch": handler.New(func(ctx context.Context, p uploadBatchParams) (*uploadBatchResponse, error) {
			res, err := s.rpcUploadBatch(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res, nil
		}),
		"Archive.GetRange": handler.New(func(ctx context.Context, p getRangeParams) (*getRangeResponse, error) {
			res, err := s.rpcGetRange(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res, nil
		}),
		"Archive.Head": handler.New(func(ctx context.Context) (*headResponse, error) {
			res, err := s.rpcHead()
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res, nil
		}),
	}
}

// --- Implementations ---

func (s *Server) rpcUploadBatch(p uploadBatchParams) (*uploadBatchResponse, *rpcError) {
	resp := &uploadBatchResponse{}
	for _, blk := range p.Blocks {
		if blk == nil {
			continue
		}
		if !blk.VerifyHash() {
			return nil, &rpcError{Code: -32602, Message: "block content does not match its hash", Data: blk.Slot}
		}
		stored, err := s.store.Put(blk)
		if err != nil {
			return nil, &rpcError{Code: -32000, Message: err.Error(), Data: blk.Slot}
		}
		if stored {
			resp.Accepted++
		} else {
			resp.AlreadyPresent++
		}
	}
	return resp, nil
}

func (s *Server) rpcGetRange(p getRangeParams) (*getRangeResponse, *rpcError) {
	if p.ToSlot < p.FromSlot {
		return nil, &rpcError{Code: -32602, Message: "to_slot before from_slot"}
	}
	blocks, err := s.store.GetRange(p.FromSlot, p.ToSlot)
	if err != nil {
		return nil, &rpcError{Code: -32000, Message: err.Error()}
	}
	return &getRangeResponse{Blocks: blocks}, nil
}

func (s *Server) rpcHead() (*headResponse, *rpcError) {
	slot, count, err := s.store.Head()
	if err != nil {
		return nil, &rpcError{Code: -32000, Message: err.Error()}
	}
	return &headResponse{Slot: slot, Count: count}, nil
}
