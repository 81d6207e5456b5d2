package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lowaak/ttwatch/internal/download"
	"github.com/lowaak/ttwatch/internal/export"
	"github.com/lowaak/ttwatch/internal/fileid"
	"github.com/lowaak/ttwatch/internal/ttbin"
	"github.com/lowaak/ttwatch/internal/watch"
)

// runOnline performs every requested action on the connected watch, in a
// fixed order, stopping at the first error.
func runOnline(ctx context.Context, dev *watch.Device, o *options, args []string, logger *log.Logger) error {
	out := os.Stdout
	steps := []struct {
		enabled bool
		run     func() error
	}{
		{o.info, func() error { return printInfo(ctx, out, dev) }},
		{o.getName, func() error {
			name, err := dev.WatchName(ctx)
			if err == nil {
				fmt.Fprintln(out, name)
			}
			return err
		}},
		{o.setName != "", func() error { return dev.SetWatchName(ctx, o.setName) }},
		{o.getSetting != "", func() error { return getSetting(ctx, out, dev, o.getSetting) }},
		{o.setSetting != "", func() error { return setSetting(ctx, dev, o.setSetting) }},
		{o.list, func() error { return listFiles(ctx, out, dev) }},
		{o.activities, func() error { return listActivities(ctx, out, dev) }},
		{o.read != "", func() error { return readFile(ctx, dev, o.read, args) }},
		{o.write != "", func() error { return writeFile(ctx, dev, o.write, args) }},
		{o.delete != "", func() error { return deleteFile(ctx, dev, o.delete) }},
		{o.download != "", func() error { return downloadActivities(ctx, out, dev, o.download, o.exportFIT, logger) }},
		{o.updateGPS != "", func() error {
			return dev.UpdateGPSQuickFix(ctx, download.NewHTTP(http.DefaultClient, logger), o.updateGPS)
		}},
	}
	for _, s := range steps {
		if !s.enabled {
			continue
		}
		if err := s.run(); err != nil {
			return err
		}
	}
	return nil
}

func printInfo(ctx context.Context, w io.Writer, dev *watch.Device) error {
	i := dev.Info()
	fmt.Fprintf(w, "transport:  %s\n", i.Transport)
	fmt.Fprintf(w, "serial:     %s\n", i.SerialNumber)
	if i.ModelName != "" {
		fmt.Fprintf(w, "model:      %s\n", i.ModelName)
	}
	if i.ProductID != 0 {
		fmt.Fprintf(w, "product id: 0x%08x\n", i.ProductID)
	}
	fmt.Fprintf(w, "firmware:   %s\n", i.Firmware)
	if i.Transport == watch.TransportUSB {
		fmt.Fprintf(w, "ble:        %d\n", i.BLEVersion)
	}
	name, err := dev.WatchName(ctx)
	if err != nil && !errors.Is(err, watch.ErrNoWatchName) {
		return err
	}
	fmt.Fprintf(w, "name:       %s\n", name)
	return nil
}

func parseSetting(s string) (index uint16, value uint32, err error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return 0, 0, fmt.Errorf("setting %q is not INDEX=VALUE", s)
	}
	i, err := strconv.ParseUint(strings.TrimSpace(k), 0, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("setting index %q: %w", k, err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("setting value %q: %w", v, err)
	}
	return uint16(i), uint32(n), nil
}

func getSetting(ctx context.Context, w io.Writer, dev *watch.Device, s string) error {
	i, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return fmt.Errorf("setting index %q: %w", s, err)
	}
	v, err := dev.ManifestEntry(ctx, uint16(i))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d = %d\n", i, v)
	return nil
}

func setSetting(ctx context.Context, dev *watch.Device, s string) error {
	i, v, err := parseSetting(s)
	if err != nil {
		return err
	}
	return dev.SetManifestEntry(ctx, i, v)
}

func listFiles(ctx context.Context, w io.Writer, dev *watch.Device) error {
	ids, err := dev.ListFiles(ctx, fileid.AnyType)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintf(w, "%s  %s\n", id, id.TypeName())
	}
	return nil
}

func listActivities(ctx context.Context, w io.Writer, dev *watch.Device) error {
	ids, err := dev.Activities(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		f, err := dev.ReadActivity(ctx, id)
		if err != nil {
			fmt.Fprintf(w, "%s  %v\n", id, err)
			continue
		}
		s := f.Summary
		fmt.Fprintf(w, "%s  %s  %-14s %8.0f m %6d s %5d kcal\n",
			id, localStart(f).Format("2006-01-02 15:04:05"), s.Activity, s.Distance, s.Duration, s.Calories)
	}
	return nil
}

func readFile(ctx context.Context, dev *watch.Device, idArg string, args []string) error {
	id, err := fileid.Parse(idArg)
	if err != nil {
		return err
	}
	data, err := dev.ReadFile(ctx, id)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(args[0], data, 0o644)
}

func writeFile(ctx context.Context, dev *watch.Device, idArg string, args []string) error {
	id, err := fileid.Parse(idArg)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return errors.New("--write needs the file to upload as argument")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	return dev.WriteFile(ctx, id, data)
}

func deleteFile(ctx context.Context, dev *watch.Device, idArg string) error {
	id, err := fileid.Parse(idArg)
	if err != nil {
		return err
	}
	return dev.DeleteFile(ctx, id)
}

func downloadActivities(ctx context.Context, w io.Writer, dev *watch.Device, dir string, withFIT bool, logger *log.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	ids, err := dev.Activities(ctx)
	if err != nil {
		return err
	}
	x := export.FIT{}
	for _, id := range ids {
		data, err := dev.ReadFile(ctx, id)
		if err != nil {
			return err
		}
		f, perr := ttbin.Parse(data)
		base := fmt.Sprintf("%08x", uint32(id))
		if perr == nil {
			base = downloadName(f)
		}
		path := filepath.Join(dir, base+".ttbin")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintln(w, path)
		if perr != nil {
			logger.Printf("ttwatch: %s: %v", id, perr)
			continue
		}
		if withFIT {
			fitPath := filepath.Join(dir, base+"."+x.Extension())
			if err := exportTo(fitPath, f, x); err != nil {
				logger.Printf("ttwatch: export %s: %v", fitPath, err)
				continue
			}
			fmt.Fprintln(w, fitPath)
		}
	}
	return nil
}
