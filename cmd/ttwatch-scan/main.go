// Command ttwatch-scan lists the watches advertising over Bluetooth LE.
// Selecting one remembers it as the watch ttwatch connects to.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"tinygo.org/x/bluetooth"

	"github.com/lowaak/ttwatch/internal/bt"
	"github.com/lowaak/ttwatch/internal/config"
	"github.com/lowaak/ttwatch/internal/logging"
)

func formatWatch(w bt.Watch, known bool) string {
	name := w.Name
	if name == "" {
		name = "Unknown"
	}
	mark := "  "
	if known {
		mark = "[green]*[-] "
	}
	return fmt.Sprintf("%s%s (%s) [RSSI: %d]", mark, tview.Escape(name), w.Address, w.RSSI)
}

// fillList replaces the items of list, keeping the selected row.
func fillList(list *tview.List, watches []bt.Watch, state *config.State) {
	current := list.GetCurrentItem()
	list.Clear()
	for _, w := range watches {
		list.AddItem(formatWatch(w, state.IsKnown(w.Address)), "", 0, nil)
	}
	if current < len(watches) {
		list.SetCurrentItem(current)
	}
}

func main() {
	fs := pflag.NewFlagSet("ttwatch-scan", pflag.ExitOnError)
	config.RegisterFlags(fs)
	timeout := fs.Duration("scan-timeout", 10*time.Second, "forget watches not seen for this long")
	all := fs.Bool("all", false, "list every advertising device, not only watches")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	must("load config", err)

	app := tview.NewApplication()

	// Log pane (right half). Redrawn with the watch list.
	logView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	logView.SetBorder(true).SetTitle(" Logs ")

	logger, err := logging.New(cfg.Log, tview.ANSIWriter(logView))
	must("open log", err)
	defer logger.Close()

	state := config.LoadState(config.DefaultDir(), logger.Logger)

	opts := []bt.Option{bt.WithTimeout(*timeout)}
	if *all {
		opts = append(opts, bt.WithFilter(nil))
	}
	scanner := bt.NewScanner(bluetooth.DefaultAdapter, logger.Logger, opts...)
	must("enable BLE stack", scanner.Enable())

	// Watch list (left half). shown is only touched on the UI goroutine.
	var shown []bt.Watch
	watchList := tview.NewList().ShowSecondaryText(false)
	watchList.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		if index >= len(shown) {
			return
		}
		w := shown[index]
		if err := state.Remember(w.Address, w.Name); err != nil {
			logger.Printf("Scan: remember %s: %v", w.Address, err)
			return
		}
		logger.Printf("Scan: selected %s, connect with: ttwatch --transport ble", w.Address)
		fillList(watchList, shown, state)
	})
	watchList.SetBorder(true).SetTitle(" Watches (Enter to select, * = known) ")

	flex := tview.NewFlex().
		AddItem(watchList, 0, 1, true).
		AddItem(logView, 0, 1, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyTab:
			if watchList.HasFocus() {
				app.SetFocus(logView)
			} else {
				app.SetFocus(watchList)
			}
			return nil
		case tcell.KeyEscape:
			app.Stop()
			return nil
		}
		return event
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	updates := make(chan []bt.Watch, 1)
	defer scanner.ListenWatches(updates)()

	logger.Printf("Scan: starting BLE scan")
	must("start scan", scanner.Start(ctx))

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				app.Stop()
				return nil
			case ws := <-updates:
				app.QueueUpdateDraw(func() {
					shown = ws
					fillList(watchList, ws, state)
				})
			}
		}
	})
	grp.Go(func() error {
		defer stop()
		return app.SetRoot(flex, true).SetFocus(watchList).Run()
	})
	err = grp.Wait()

	scanner.Stop()
	must("run UI", err)
}

func must(action string, err error) {
	if err != nil {
		panic("failed to " + action + ": " + err.Error())
	}
}
