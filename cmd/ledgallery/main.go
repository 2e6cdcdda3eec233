package main

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/ledgallery/ledgallery"
	"github.com/ledgallery/ledgallery/bank"
	"github.com/ledgallery/ledgallery/catalog"
	"github.com/ledgallery/ledgallery/fetch"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const (
	defaultDB  = "ledgallery.db"
	defaultOut = "data"
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func newLogger(c *cli.Context) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)
	if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func loadConfig(c *cli.Context) (*ledgallery.Config, error) {
	cfg, err := ledgallery.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("concurrency") {
		cfg.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("width") {
		cfg.Width = c.Int("width")
	}
	if c.IsSet("height") {
		cfg.Height = c.Int("height")
	}
	return cfg, cfg.Validate()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func importAction(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	logger := newLogger(c)

	db, err := catalog.Open(c.String("db"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer db.Close()

	n, err := db.ImportJSON(c.Args().First())
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	total, err := db.Count()
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	logger.WithFields(logrus.Fields{
		"imported": n,
		"total":    total,
	}).Info("Imported catalog")
	fmt.Printf("Imported %d records, catalog now holds %d\n", n, total)

	return nil
}

func buildAction(c *cli.Context) error {
	logger := newLogger(c)

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	db, err := catalog.Open(c.String("db"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer db.Close()

	opts := []fetch.Option{
		fetch.WithLogger(logger),
		fetch.WithTimeout(time.Duration(cfg.FetchTimeout)),
		fetch.WithMaxBytes(cfg.MaxFetchBytes),
	}
	if cfg.CacheSize > 0 {
		opts = append(opts, fetch.WithCache(cfg.CacheSize, time.Hour))
	}

	g := ledgallery.New(db, fetch.New(opts...), cfg, logger)

	var progress *progressObserver
	if !c.Bool("quiet") {
		progress = newProgressObserver(os.Stderr)
		g.SetObserver(progress)
	}

	ctx, cancel := signalContext()
	defer cancel()

	report, err := g.Build(ctx, ledgallery.Query{
		Unviewed:  c.Bool("unviewed"),
		MediaType: c.String("media-type"),
		Limit:     c.Int("limit"),
	}, c.String("out"))
	if progress != nil {
		progress.Finish()
	}
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	if report.Dropped > 0 {
		fmt.Printf("Limited to the first %d of %d images\n", report.Selected-report.Dropped, report.Selected)
	}
	for _, d := range report.Devices {
		switch d.Status {
		case ledgallery.StatusEmpty:
			fmt.Printf("%-12s no images transcoded out of %d, nothing written\n", d.Device.Name, d.Assigned)
		default:
			fmt.Printf("%-12s %d/%d images (%s), %s -> %s\n", d.Device.Name, d.Succeeded(), d.Assigned,
				d.Status, humanize.Bytes(uint64(d.Bank.Size())), filepath.Dir(d.BinaryPath))
		}
	}

	if report.Succeeded() == 0 {
		return cli.NewExitError(errors.New("no images were transcoded"), 1)
	}

	return nil
}

func previewAction(c *cli.Context) error {
	if c.NArg() < 2 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	in, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer in.Close()

	b, err := bank.Decode(in, cfg.Width, cfg.Height)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	out, err := os.Create(c.Args().Get(1))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer out.Close()

	if err := bank.WriteContactSheet(out, b, bank.SheetOptions{
		Columns: c.Int("columns"),
		Scale:   c.Int("scale"),
		Gap:     2,
	}); err != nil {
		return cli.NewExitError(err, 1)
	}

	fmt.Printf("Rendered %d images to %s\n", b.Len(), c.Args().Get(1))
	return nil
}

func main() {
	// A missing .env file is fine, the environment may already be set
	_ = godotenv.Load()

	app := cli.NewApp()

	app.Name = "ledgallery"
	app.Usage = "Build LED matrix image banks from an artwork catalog"
	app.Version = "1.0.0"

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	sizeFlags := []cli.Flag{
		&cli.IntFlag{
			Name:  "width",
			Usage: "matrix width in LEDs",
		},
		&cli.IntFlag{
			Name:  "height",
			Usage: "matrix height in LEDs",
		},
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			EnvVars: []string{"LEDGALLERY_DB"},
			Value:   filepath.Join(cwd, defaultDB),
			Usage:   "path to catalog database",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			EnvVars: []string{"LEDGALLERY_CONFIG"},
			Usage:   "path to TOML configuration",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "import",
			Usage:     "Import a JSON export of the artwork catalog",
			ArgsUsage: "FILE",
			Action:    importAction,
		},
		{
			Name:  "build",
			Usage: "Transcode catalog images and write an image bank per device",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:    "out",
					Aliases: []string{"o"},
					EnvVars: []string{"LEDGALLERY_OUT"},
					Value:   filepath.Join(cwd, defaultOut),
					Usage:   "output directory, one subdirectory per device",
				},
				&cli.BoolFlag{
					Name:  "unviewed",
					Usage: "only use images not yet marked as viewed",
				},
				&cli.StringFlag{
					Name:  "media-type",
					Value: "image",
					Usage: "only use catalog entries of this media type",
				},
				&cli.IntFlag{
					Name:  "limit",
					Usage: "read at most this many catalog entries",
				},
				&cli.IntFlag{
					Name:    "concurrency",
					EnvVars: []string{"LEDGALLERY_CONCURRENCY"},
					Usage:   "maximum fetches in flight",
				},
				&cli.BoolFlag{
					Name:    "quiet",
					Aliases: []string{"q"},
					Usage:   "do not show a progress bar",
				},
			}, sizeFlags...),
			Action: buildAction,
		},
		{
			Name:      "preview",
			Usage:     "Render an image bank as a GIF contact sheet",
			ArgsUsage: "BANK OUTPUT",
			Flags: append([]cli.Flag{
				&cli.IntFlag{
					Name:  "columns",
					Value: bank.DefaultSheetOptions.Columns,
					Usage: "images per row",
				},
				&cli.IntFlag{
					Name:  "scale",
					Value: bank.DefaultSheetOptions.Scale,
					Usage: "output pixels per LED",
				},
			}, sizeFlags...),
			Action: previewAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
