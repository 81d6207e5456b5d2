// Command ttwatch talks to a GPS sports watch over USB or Bluetooth LE and
// edits the activity files it records.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/lowaak/ttwatch/internal/config"
	"github.com/lowaak/ttwatch/internal/logging"
)

// defaultQuickFixURL serves the ephemeris data the watch uses for a fast
// first fix.
const defaultQuickFixURL = "https://gpsquickfix.services.tomtom.com/fitness/sifgps.f2p3enc.ee"

type options struct {
	devices    bool
	info       bool
	list       bool
	activities bool
	read       string
	write      string
	delete     string

	getName    bool
	setName    string
	getSetting string
	setSetting string

	updateGPS string
	download  string
	exportFIT bool

	convert          string
	fit              string
	truncateLaps     string
	truncateRace     string
	truncateGoal     string
	truncateInterval string
	replaceLaps      string
}

func newFlagSet(o *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("ttwatch", pflag.ContinueOnError)
	config.RegisterFlags(fs)

	fs.BoolVar(&o.devices, "devices", false, "list watches attached over USB")
	fs.BoolVar(&o.info, "info", false, "show the identity of the watch")
	fs.BoolVarP(&o.list, "list", "l", false, "list every file on the watch")
	fs.BoolVar(&o.activities, "activities", false, "list the activities on the watch")
	fs.StringVar(&o.read, "read", "", "read file `ID` to the path given as argument, or stdout")
	fs.StringVar(&o.write, "write", "", "write the file given as argument to file `ID`")
	fs.StringVar(&o.delete, "delete", "", "delete file `ID`")

	fs.BoolVar(&o.getName, "get-name", false, "show the watch name")
	fs.StringVar(&o.setName, "set-name", "", "set the watch name")
	fs.StringVar(&o.getSetting, "get-setting", "", "show manifest entry `INDEX`")
	fs.StringVar(&o.setSetting, "set-setting", "", "set a manifest entry, as `INDEX=VALUE`")

	fs.StringVar(&o.updateGPS, "update-gps", "", "download GPS quickfix data from `URL` and load it")
	fs.Lookup("update-gps").NoOptDefVal = defaultQuickFixURL
	fs.StringVar(&o.download, "download-activities", "", "copy every activity into `DIR`")
	fs.BoolVar(&o.exportFIT, "export-fit", false, "also write a FIT file for each downloaded activity")

	fs.StringVar(&o.convert, "convert", "", "convert the activity file `TTBIN` to FIT")
	fs.StringVar(&o.fit, "fit", "", "FIT output path for --convert (default TTBIN with .fit)")
	fs.StringVar(&o.truncateLaps, "truncate-laps", "", "cut `TTBIN` after its last lap")
	fs.StringVar(&o.truncateRace, "truncate-race", "", "cut `TTBIN` at the end of its race")
	fs.StringVar(&o.truncateGoal, "truncate-goal", "", "cut `TTBIN` where its goal was reached")
	fs.StringVar(&o.truncateInterval, "truncate-intervals", "", "cut `TTBIN` after its interval session")
	fs.StringVar(&o.replaceLaps, "replace-laps", "", "recompute the laps of the file given as argument from comma separated lap `DISTANCES` in metres")
	return fs
}

func main() {
	var o options
	fs := newFlagSet(&o)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "ttwatch:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, fs, &o)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ttwatch:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, fs *pflag.FlagSet, o *options) error {
	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("log: %w", err)
	}
	defer logger.Close()
	logger.Printf("ttwatch: start %v", os.Args[1:])

	if handled, err := runOffline(o, fs.Args(), logger.Logger); handled {
		return err
	}
	if o.devices {
		return listUSB(os.Stdout)
	}
	if !o.needsWatch() {
		fmt.Fprintf(os.Stderr, "Usage of ttwatch:\n%s", fs.FlagUsages())
		return errors.New("no action given")
	}

	state := config.LoadState(config.DefaultDir(), logger.Logger)
	dev, err := connect(ctx, cfg, state, logger.Logger)
	if err != nil {
		return err
	}
	err = runOnline(ctx, dev, o, fs.Args(), logger.Logger)
	if cerr := dev.Close(ctx); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close: %w", cerr))
	}
	return err
}

func (o *options) needsWatch() bool {
	return o.info || o.list || o.activities || o.read != "" || o.write != "" || o.delete != "" ||
		o.getName || o.setName != "" || o.getSetting != "" || o.setSetting != "" ||
		o.updateGPS != "" || o.download != ""
}
