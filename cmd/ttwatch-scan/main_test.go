package main

import (
	"io"
	"log"
	"testing"

	"github.com/rivo/tview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/ttwatch/internal/bt"
	"github.com/lowaak/ttwatch/internal/config"
)

func TestFormatWatch(t *testing.T) {
	w := bt.Watch{Address: "E4:04:39:00:00:01", Name: "Spark 3", RSSI: -61}
	assert.Equal(t, "  Spark 3 (E4:04:39:00:00:01) [RSSI: -61]", formatWatch(w, false))
	assert.Equal(t, "[green]*[-] Spark 3 (E4:04:39:00:00:01) [RSSI: -61]", formatWatch(w, true))
	assert.Contains(t, formatWatch(bt.Watch{Address: "E4:04:39:00:00:02"}, false), "Unknown")
}

func TestFillList(t *testing.T) {
	state := config.LoadState(t.TempDir(), log.New(io.Discard, "", 0))
	require.NoError(t, state.Remember("E4:04:39:00:00:02", "Runner 2"))

	watches := []bt.Watch{
		{Address: "E4:04:39:00:00:01", Name: "Spark 3", RSSI: -50},
		{Address: "E4:04:39:00:00:02", Name: "Runner 2", RSSI: -70},
	}
	list := tview.NewList()
	fillList(list, watches, state)
	require.Equal(t, 2, list.GetItemCount())
	list.SetCurrentItem(1)

	text, _ := list.GetItemText(1)
	assert.Contains(t, text, "[green]*[-]")

	fillList(list, watches, state)
	assert.Equal(t, 2, list.GetItemCount())
	assert.Equal(t, 1, list.GetCurrentItem(), "selection kept across refreshes")

	fillList(list, watches[:1], state)
	assert.Equal(t, 1, list.GetItemCount())
}
