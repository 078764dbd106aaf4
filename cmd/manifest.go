package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/infoboard/infoboard/cmd/common"
	"github.com/infoboard/infoboard/internal/config"
	"github.com/infoboard/infoboard/internal/manifest"
	"github.com/infoboard/infoboard/internal/server"
	"github.com/infoboard/infoboard/pkg/logger"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// errManifestExists is returned by manifest init without --force.
var errManifestExists = errors.New("manifest already exists, use --force to overwrite")

func manifestInit(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "manifest", "load_config", err)
		return nil
	}
	c := context.Background()
	st, err := openStorage(c, cfg)
	if err != nil {
		common.PrintRuntimeErr(ctx, "manifest", "open_storage", err)
		return nil
	}
	defer st.Close()

	if err := initManifest(c, st.manifests(cfg, logger.NewNopLogger()), cfg, ctx.Bool("force")); err != nil {
		common.PrintRuntimeErr(ctx, "manifest", "init", err)
		return nil
	}
	fmt.Fprintf(stdout, "Created %s with %d slots.\n", cfg.ManifestPath, len(manifest.Catalog))
	return nil
}

// initManifest writes the default manifest unless one is already stored.
// A stored but unreadable manifest counts as existing.
func initManifest(ctx context.Context, mc *manifest.Client, cfg *config.Config, force bool) error {
	if !force {
		_, err := mc.Read(ctx, manifest.ReadOptions{})
		switch {
		case err == nil, errors.Is(err, manifest.ErrInvalidManifest):
			return errManifestExists
		case !errors.Is(err, manifest.ErrNotFound):
			return err
		}
	}
	return mc.Write(ctx, manifest.Default(cfg.BoardDurationMs(), time.Now()))
}

func manifestShow(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "manifest", "load_config", err)
		return nil
	}
	c := context.Background()
	st, err := openStorage(c, cfg)
	if err != nil {
		common.PrintRuntimeErr(ctx, "manifest", "open_storage", err)
		return nil
	}
	defer st.Close()

	m, err := st.manifests(cfg, logger.NewNopLogger()).Read(c, manifest.ReadOptions{})
	if err != nil {
		common.PrintRuntimeErr(ctx, "manifest", "read", err)
		return nil
	}
	printManifest(stdout, m, time.Now())
	return nil
}

// printManifest writes a slot table, one line per slot.
func printManifest(w io.Writer, m *manifest.Manifest, now time.Time) {
	fmt.Fprintf(w, "Version %d, updated %s, board %s\n\n",
		m.Version, ago(m.UpdatedAt, now), time.Duration(m.Board.DurationMs)*time.Millisecond)

	headers := []string{"SLOT", "KIND", "ON", "DURATION", "SIZE", "PATH", "UPDATED"}
	rows := make([][]string, 0, len(m.Slots))
	for _, s := range m.Slots {
		on := "off"
		if s.Enabled {
			on = "on"
		}
		dur := (time.Duration(s.DurationMs) * time.Millisecond).String()
		if s.UseVideoDuration {
			dur = "video"
		}
		size, path := "-", "-"
		if s.Size > 0 {
			size = humanize.IBytes(uint64(s.Size))
		}
		if s.Path != "" {
			path = s.Path
		}
		rows = append(rows, []string{s.ID, string(s.Kind), on, dur, size, path, ago(s.UpdatedAt, now)})
	}
	printTable(w, headers, rows)
}

func ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func manifestRefresh(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "manifest", "load_config", err)
		return nil
	}
	tok := ctx.String("token")
	if tok == "" {
		tok, err = newTokenStore(cfg.DataDir, logger.NewNopLogger()).Get()
		if err != nil {
			common.PrintRuntimeErr(ctx, "manifest", "token", err)
			return nil
		}
	}
	addr := ctx.String("addr")
	if addr == "" {
		addr = serverURL(cfg.Listen)
	}

	c, cancel := context.WithTimeout(context.Background(), DEF_RPC_TIMEOUT)
	defer cancel()
	res, err := refreshCarousel(c, addr, tok)
	if err != nil {
		common.PrintRuntimeErr(ctx, "manifest", "refresh", err)
		return nil
	}
	fmt.Fprintf(stdout, "Carousel %s: %s (%d playlist entries)\n",
		res.Status.Carousel.State, res.Status.Carousel.Message, res.Status.PlaylistLen)
	return nil
}

// bearer adds an Authorization header to every request.
type bearer struct {
	token string
	next  http.RoundTripper
}

func (b bearer) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(r)
}

// refreshCarousel calls carousel.refresh on the server at base.
func refreshCarousel(ctx context.Context, base, token string) (*server.RefreshResult, error) {
	ch := jhttp.NewChannel(strings.TrimSuffix(base, "/")+"/rpc", &jhttp.ChannelOptions{
		Client: &http.Client{Transport: bearer{token: token, next: http.DefaultTransport}},
	})
	cli := jrpc2.NewClient(ch, nil)
	defer cli.Close()

	var res server.RefreshResult
	if err := cli.CallResult(ctx, "carousel.refresh", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
