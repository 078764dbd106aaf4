package server

import (
	"context"
	"errors"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/infoboard/infoboard/internal/display"
	"github.com/infoboard/infoboard/internal/manifest"
)

// JSON-RPC error codes for carousel operations.
const (
	codeManifestNotFound = jrpc2.Code(-32001)
	codeRefreshFailed    = jrpc2.Code(-32002)
	codeUnavailable      = jrpc2.Code(-32003)
	codeInvalidParams    = jrpc2.Code(-32602)
)

// Display is the running display engine.
type Display interface {
	Report(ctx context.Context, sig display.Signal) error
	RefreshManifest(ctx context.Context) error
	Status(ctx context.Context) (display.Snapshot, error)
}

// ManifestReader reads the stored manifest.
type ManifestReader interface {
	Read(ctx context.Context, opts manifest.ReadOptions) (*manifest.Manifest, error)
}

// RPCServer holds the JSON-RPC method handlers for admins and displays.
type RPCServer struct {
	bridge    jhttp.Bridge
	closeOnce sync.Once
	display   Display
	manifests ManifestReader
	version   string
	commit    string
	buildType string
}

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildType string `json:"buildType,omitempty"`
}

// RefreshResult is the response for carousel.refresh.
type RefreshResult struct {
	Status display.Snapshot `json:"status"`
}

// NewRPCServer creates the admin bridge.
func NewRPCServer(cfg *Config, d Display, mr ManifestReader) *RPCServer {
	rs := &RPCServer{
		display:   d,
		manifests: mr,
		version:   cfg.Version,
		commit:    cfg.Commit,
		buildType: cfg.BuildType,
	}
	methods := handler.Map{
		"system.getVersion": handler.New(rs.systemGetVersion),
		"carousel.refresh":  handler.New(rs.carouselRefresh),
		"display.status":    handler.New(rs.displayStatus),
		"manifest.get":      handler.New(rs.manifestGet),
	}
	rs.bridge = jhttp.NewBridge(methods, nil)
	return rs
}

// displayMethods are served on each display websocket.
func (rs *RPCServer) displayMethods() handler.Map {
	return handler.Map{
		"system.getVersion": handler.New(rs.systemGetVersion),
		"display.report":    handler.New(rs.displayReport),
	}
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*VersionResult, error) {
	return &VersionResult{
		Version:   rs.version,
		Commit:    rs.commit,
		BuildType: rs.buildType,
	}, nil
}

// carouselRefresh re-reads the manifest and reports where the display ended up.
func (rs *RPCServer) carouselRefresh(ctx context.Context) (*RefreshResult, error) {
	if err := rs.display.RefreshManifest(ctx); err != nil {
		switch {
		case errors.Is(err, manifest.ErrNotFound):
			return nil, &jrpc2.Error{Code: codeManifestNotFound, Message: err.Error()}
		case errors.Is(err, display.ErrStopped):
			return nil, &jrpc2.Error{Code: codeUnavailable, Message: err.Error()}
		}
		return nil, &jrpc2.Error{Code: codeRefreshFailed, Message: err.Error()}
	}
	st, err := rs.display.Status(ctx)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeUnavailable, Message: err.Error()}
	}
	return &RefreshResult{Status: st}, nil
}

func (rs *RPCServer) displayStatus(ctx context.Context) (*display.Snapshot, error) {
	st, err := rs.display.Status(ctx)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeUnavailable, Message: err.Error()}
	}
	return &st, nil
}

// manifestGet returns the stored manifest as the display would see it.
func (rs *RPCServer) manifestGet(ctx context.Context) (*manifest.Manifest, error) {
	m, err := rs.manifests.Read(ctx, manifest.ReadOptions{})
	switch {
	case errors.Is(err, manifest.ErrNotFound):
		return nil, &jrpc2.Error{Code: codeManifestNotFound, Message: err.Error()}
	case err != nil:
		return nil, &jrpc2.Error{Code: codeRefreshFailed, Message: err.Error()}
	}
	return m, nil
}

// displayReport forwards a media signal from a display.
func (rs *RPCServer) displayReport(ctx context.Context, sig *display.Signal) (*EmptyResult, error) {
	if sig.Token == 0 || sig.Kind == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required params: token, kind"}
	}
	if err := rs.display.Report(ctx, *sig); err != nil {
		return nil, &jrpc2.Error{Code: codeUnavailable, Message: err.Error()}
	}
	return &EmptyResult{}, nil
}

// Close shuts down the jrpc2 bridge, releasing internal goroutines.
func (rs *RPCServer) Close() {
	rs.closeOnce.Do(func() { rs.bridge.Close() })
}
