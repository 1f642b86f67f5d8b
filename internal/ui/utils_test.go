package ui

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(t *testing.T, lines ...string) {
	t.Helper()
	previous := input
	input = bufio.NewReader(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	inputClosed = false
	t.Cleanup(func() {
		input = previous
		inputClosed = false
	})
}

func TestReadDateRange(t *testing.T) {
	defStart := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	defEnd := time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)

	feed(t, "", "2020-09-01")
	start, end, err := ReadDateRange(defStart, defEnd)
	require.NoError(t, err)
	assert.Equal(t, defStart, start)
	assert.Equal(t, time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC), end)

	feed(t, "2020-09-01", "2020-08-01")
	_, _, err = ReadDateRange(defStart, defEnd)
	assert.ErrorContains(t, err, "end date must be after start date")

	feed(t, "01/06/2020")
	_, _, err = ReadDateRange(defStart, defEnd)
	assert.ErrorContains(t, err, "invalid date format")
}

func TestReadFloatAndDefaults(t *testing.T) {
	feed(t, "", "25.5", "abc", "", "NDVI", "yes", "")
	v, err := ReadFloat("buffer", 20)
	require.NoError(t, err)
	assert.Equal(t, 20.0, v)

	v, err = ReadFloat("buffer", 20)
	require.NoError(t, err)
	assert.Equal(t, 25.5, v)

	_, err = ReadFloat("buffer", 20)
	assert.Error(t, err)

	assert.Equal(t, "EVI", ReadStringDefault("index", "EVI"))
	assert.Equal(t, "NDVI", ReadStringDefault("index", "EVI"))
	assert.True(t, ReadYesNo("fetch?"))
	assert.False(t, ReadYesNo("fetch?"))
}

func TestReadInt(t *testing.T) {
	feed(t, "3", "9", "x")
	v, err := ReadInt("choice: ", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = ReadInt("choice: ", 1, 5)
	assert.ErrorContains(t, err, "between 1 and 5")
	_, err = ReadInt("choice: ", 1, 5)
	assert.ErrorContains(t, err, "invalid number")
}

func TestListAndSelectFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"farms.geojson", "notes.txt", "a.gpkg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "tiles"), 0o755))

	names, err := ListFiles(dir, false, vectorExtensions...)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.gpkg", "farms.geojson"}, names)

	names, err = ListFiles(dir, true, ".nc")
	require.NoError(t, err)
	assert.Equal(t, []string{"tiles"}, names)

	feed(t, "2")
	path, err := SelectFile("Collections", dir, false, vectorExtensions...)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "farms.geojson"), path)

	_, err = SelectFile("Archives", dir, false, ".nc")
	assert.ErrorContains(t, err, "no files found")
}

func TestShowMenuExits(t *testing.T) {
	feed(t, "0", "5")
	done := make(chan struct{})
	go func() {
		ShowMenu(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("menu did not exit")
	}
}

func TestShowMenuStopsOnClosedInput(t *testing.T) {
	feed(t)
	input = bufio.NewReader(strings.NewReader(""))
	ShowMenu(context.Background())
	assert.True(t, inputClosed)
}
