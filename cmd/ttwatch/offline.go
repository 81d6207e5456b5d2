package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lowaak/ttwatch/internal/export"
	"github.com/lowaak/ttwatch/internal/ttbin"
)

// runOffline performs the actions that work on activity files without a
// watch. handled is false when none was requested.
func runOffline(o *options, args []string, logger *log.Logger) (handled bool, err error) {
	switch {
	case o.convert != "":
		out := o.fit
		if out == "" {
			out = replaceExt(o.convert, export.FIT{}.Extension())
		}
		return true, convertFile(o.convert, out, export.FIT{}, logger)
	case o.truncateLaps != "":
		return true, editFile(o.truncateLaps, logger, truncation((*ttbin.File).TruncateLaps, "laps"))
	case o.truncateRace != "":
		return true, editFile(o.truncateRace, logger, truncation((*ttbin.File).TruncateRace, "race result"))
	case o.truncateGoal != "":
		return true, editFile(o.truncateGoal, logger, truncation((*ttbin.File).TruncateGoal, "completed goal"))
	case o.truncateInterval != "":
		return true, editFile(o.truncateInterval, logger, truncation((*ttbin.File).TruncateIntervals, "interval finish"))
	case o.replaceLaps != "":
		if len(args) != 1 {
			return true, errors.New("--replace-laps needs one activity file argument")
		}
		distances, err := parseDistances(o.replaceLaps)
		if err != nil {
			return true, err
		}
		return true, editFile(args[0], logger, func(f *ttbin.File) error { return f.ReplaceLaps(distances) })
	}
	return false, nil
}

func truncation(cut func(*ttbin.File) bool, what string) func(*ttbin.File) error {
	return func(f *ttbin.File) error {
		if !cut(f) {
			return fmt.Errorf("activity has no %s", what)
		}
		return nil
	}
}

// parseDistances parses comma separated lap lengths in metres.
func parseDistances(s string) ([]float32, error) {
	var out []float32
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("lap distance %q: %w", part, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("lap distance %q must be positive", part)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

func readActivityFile(path string) (*ttbin.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := ttbin.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// editFile applies edit to the activity at path and rewrites it in place.
func editFile(path string, logger *log.Logger, edit func(*ttbin.File) error) error {
	f, err := readActivityFile(path)
	if err != nil {
		return err
	}
	if err := edit(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	data, err := f.Bytes()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	logger.Printf("ttwatch: rewrote %s (%d records)", path, f.Len())
	return nil
}

func convertFile(in, out string, x export.Exporter, logger *log.Logger) error {
	f, err := readActivityFile(in)
	if err != nil {
		return err
	}
	if err := exportTo(out, f, x); err != nil {
		return err
	}
	logger.Printf("ttwatch: converted %s to %s", in, out)
	return nil
}

func exportTo(path string, f *ttbin.File, x export.Exporter) (err error) {
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	return x.Export(w, f)
}

// writeFileAtomic replaces path through a temporary file in the same
// directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// downloadName names a downloaded activity after its type and local start
// time, e.g. trail_running_2024-03-01_07-15-00.
func downloadName(f *ttbin.File) string {
	return strings.ReplaceAll(f.Summary.Activity.String(), " ", "_") + "_" + localStart(f).Format("2006-01-02_15-04-05")
}

// localStart is the start time on the watch's clock.
func localStart(f *ttbin.File) time.Time {
	return f.StartTime.Add(time.Duration(f.UTCOffset) * time.Second)
}

func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + ext
}
