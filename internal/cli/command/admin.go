package command

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/respkv/internal/cli/connection"
	"github.com/yndnr/respkv/internal/cli/output"
	"github.com/yndnr/respkv/internal/server/httpserver/handler"
	"github.com/yndnr/respkv/internal/storage/snapshot"
)

// AdminCommand returns the admin subcommand group.
func AdminCommand() *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "Server administration through the admin HTTP API",
		Subcommands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check liveness and readiness",
				Action: adminHealth,
			},
			{
				Name:   "info",
				Usage:  "Show server information",
				Action: adminInfo,
			},
			{
				Name:  "snapshot",
				Usage: "Manage RDB snapshots",
				Subcommands: []*cli.Command{
					{
						Name:   "save",
						Usage:  "Take a snapshot now",
						Action: snapshotSave,
					},
					{
						Name:  "list",
						Usage: "List archived snapshots, newest first",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "limit", Usage: "maximum entries to list"},
						},
						Action: snapshotList,
					},
					{
						Name:      "download",
						Usage:     "Download an archived snapshot",
						ArgsUsage: "ID",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "dest",
								Aliases: []string{"d"},
								Usage:   "destination file (default <ID>.rdb)",
							},
							&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "no progress bar"},
						},
						Action: snapshotDownload,
					},
				},
			},
		},
	}
}

func adminClient(c *cli.Context) (*session, *connection.AdminClient, error) {
	s, err := getSession(c)
	if err != nil {
		return nil, nil, err
	}
	client, err := s.conns.Admin()
	if err != nil {
		return nil, nil, err
	}
	return s, client, nil
}

func (s *session) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = connection.DefaultRequestTimeout
	}
	return context.WithTimeout(parent, timeout)
}

func adminHealth(c *cli.Context) error {
	s, client, err := adminClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c.Context)
	defer cancel()

	var health handler.HealthResponse
	if err := client.GetJSON(ctx, "/health", &health); err != nil {
		s.printError("health check failed: %v", err)
		return cli.Exit("", 1)
	}
	fmt.Fprintf(s.out, "live:  %s (role %s)\n", health.Status, health.Role)

	var ready handler.HealthResponse
	if err := client.GetJSON(ctx, "/ready", &ready); err != nil {
		fmt.Fprintf(s.out, "ready: no (%v)\n", err)
		return cli.Exit("", 1)
	}
	fmt.Fprintf(s.out, "ready: %s\n", ready.Status)
	return nil
}

func adminInfo(c *cli.Context) error {
	s, client, err := adminClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c.Context)
	defer cancel()

	var info handler.InfoResponse
	if err := client.GetJSON(ctx, "/admin/v1/info", &info); err != nil {
		return fmt.Errorf("get info: %w", err)
	}
	return s.formatter().Format(s.out, info)
}

func snapshotSave(c *cli.Context) error {
	s, client, err := adminClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c.Context)
	defer cancel()

	spinner := output.NewSpinner(s.errOut, "saving snapshot")
	spinner.Start()

	var snap handler.SnapshotResponse
	if err := client.PostJSON(ctx, "/admin/v1/snapshots", nil, &snap); err != nil {
		spinner.Fail(err.Error())
		return cli.Exit("", 1)
	}
	spinner.Success(fmt.Sprintf("saved %d keys (%s)", snap.Keys, output.FormatBytes(snap.Size)))
	return s.formatter().Format(s.out, snap)
}

// snapshotTable lists archive entries in table form.
type snapshotTable []handler.ArchiveEntryResponse

func (t snapshotTable) Table() *output.Table {
	tbl := output.NewTable("ID", "CREATED", "KEYS", "SIZE", "ENCRYPTED", "DIGEST")
	for _, e := range t {
		digest := e.Digest
		if len(digest) > 12 {
			digest = digest[:12]
		}
		tbl.AddRow(
			e.ID,
			e.CreatedAt.Local().Format(time.DateTime),
			strconv.Itoa(e.Keys),
			output.FormatBytes(e.Size),
			strconv.FormatBool(e.Encrypted),
			digest,
		)
	}
	return tbl
}

func snapshotList(c *cli.Context) error {
	s, client, err := adminClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c.Context)
	defer cancel()

	path := "/admin/v1/snapshots"
	if limit := c.Int("limit"); limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}

	var list handler.ListSnapshotsResponse
	if err := client.GetJSON(ctx, path, &list); err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	if s.format == output.FormatTable {
		if len(list.Snapshots) == 0 {
			fmt.Fprintln(s.out, "no archived snapshots")
			return nil
		}
		return s.formatter().Format(s.out, snapshotTable(list.Snapshots))
	}
	return s.formatter().Format(s.out, list)
}

// errDigestMismatch means the downloaded file does not hash to the digest
// the server advertised.
var errDigestMismatch = errors.New("downloaded snapshot does not match its digest")

func snapshotDownload(c *cli.Context) error {
	s, client, err := adminClient(c)
	if err != nil {
		return err
	}
	id := c.Args().First()
	if id == "" {
		return cli.Exit("snapshot ID required", 2)
	}
	dest := c.String("dest")
	if dest == "" {
		dest = id + ".rdb"
	}

	// Downloads are bounded by the signal context only.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".respkv-download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	digest := snapshot.NewDigest()
	var bar *output.ProgressBar
	progress := func(total int64) io.Writer {
		if c.Bool("quiet") {
			return nil
		}
		bar = output.NewProgressBar(s.errOut, id, total)
		return bar
	}

	resp, n, err := client.Download(c.Context, "/admin/v1/snapshots/"+url.PathEscape(id)+"/file",
		io.MultiWriter(tmp, digest), progress)
	if bar != nil {
		bar.Finish()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download %s: %w", id, err)
	}

	if want := resp.Header.Get("X-Snapshot-Digest"); want != "" {
		if got := hex.EncodeToString(digest.Sum(nil)); got != want {
			return fmt.Errorf("%w: got %s, want %s", errDigestMismatch, got, want)
		}
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "wrote %s (%s)\n", dest, output.FormatBytes(n))
	return nil
}
