package ledgallery

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/ledgallery/ledgallery/bank"
	"github.com/ledgallery/ledgallery/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCatalog struct {
	images []SourceImage
	err    error
	query  Query
}

func (c *staticCatalog) Images(_ context.Context, q Query) ([]SourceImage, error) {
	c.query = q
	return c.images, c.err
}

func newTestGallery(t *testing.T, images []SourceImage, f Fetcher, cfg *Config) (*Gallery, *recordingObserver) {
	t.Helper()
	g := New(&staticCatalog{images: images}, f, cfg, testLogger())
	g.transcoder.sleep = new(cooldowns).sleep
	obs := new(recordingObserver)
	g.SetObserver(obs)
	return g, obs
}

func TestBuild(t *testing.T) {
	f := newFakeFetcher()
	images := sourceImages(7)
	for i, img := range images {
		// Image 3 lands on centerLeft and image 6 is the only one right gets
		if i == 3 || i == 6 {
			continue
		}
		f.bodies[img.URL] = pngBytes(t, 40+i, 30, color.NRGBA{uint8(i * 30), 0x80, 0x40, 0xff})
	}

	dir := t.TempDir()
	g, obs := newTestGallery(t, images, f, DefaultConfig())

	report, err := g.Build(context.Background(), Query{Unviewed: true}, dir)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 7, report.Selected)
	assert.Zero(t, report.Dropped)
	assert.Equal(t, 5, report.Succeeded())
	assert.Equal(t, 2, report.Failed())
	require.Len(t, report.Devices, 4)

	var statuses []DeviceStatus
	var assigned []int
	for _, d := range report.Devices {
		statuses = append(statuses, d.Status)
		assigned = append(assigned, d.Assigned)
	}
	assert.Equal(t, []int{2, 2, 2, 1}, assigned)
	assert.Equal(t, []DeviceStatus{StatusComplete, StatusPartial, StatusComplete, StatusEmpty}, statuses)

	for _, d := range report.Devices[:3] {
		info, err := os.Stat(d.BinaryPath)
		require.NoError(t, err)
		assert.Equal(t, int64(d.Succeeded()*30*30*2), info.Size())

		fh, err := os.Open(d.BinaryPath)
		require.NoError(t, err)
		b, err := bank.Decode(fh, 30, 30)
		fh.Close()
		require.NoError(t, err)
		assert.Equal(t, d.Bank.Images, b.Images)
	}

	header, err := ioutil.ReadFile(filepath.Join(dir, "centerLeft", HeaderFilename))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(header), "#define NUM_IMAGES_CENTERLEFT 1\n"))

	_, err = os.Stat(filepath.Join(dir, "right", BinaryFilename))
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, report.Devices[3].BinaryPath)

	assert.Len(t, obs.reports, 4)
	assert.Equal(t, map[string]int{"left": 2, "centerLeft": 2, "centerRight": 2, "right": 1}, obs.started)
	assert.True(t, g.catalog.(*staticCatalog).query.Unviewed)

	// No temporary files are left behind
	entries, err := ioutil.ReadDir(filepath.Join(dir, "left"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{BinaryFilename, HeaderFilename}, names)
}

func TestBuildDeterministic(t *testing.T) {
	f := newFakeFetcher()
	images := sourceImages(6)
	for i, img := range images {
		f.bodies[img.URL] = pngBytes(t, 50, 20+i*10, color.NRGBA{0x20, uint8(i * 40), 0x90, 0xff})
	}

	cfg := DefaultConfig()
	cfg.Devices = []string{"a", "b"}

	var outputs [][]byte
	for run := 0; run < 2; run++ {
		dir := t.TempDir()
		g, _ := newTestGallery(t, images, f, cfg)
		_, err := g.Build(context.Background(), Query{}, dir)
		require.NoError(t, err)

		b, err := ioutil.ReadFile(filepath.Join(dir, "b", HeaderFilename))
		require.NoError(t, err)
		outputs = append(outputs, b)
	}
	assert.Equal(t, outputs[0], outputs[1])
}

func TestBuildCapsImages(t *testing.T) {
	f := newFakeFetcher()
	images := sourceImages(10)
	for _, img := range images {
		f.bodies[img.URL] = pngBytes(t, 8, 8, color.White)
	}

	cfg := DefaultConfig()
	cfg.MaxImages = 6
	cfg.Devices = []string{"one", "two", "three", "four"}
	g, _ := newTestGallery(t, images, f, cfg)

	report, err := g.Build(context.Background(), Query{}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 10, report.Selected)
	assert.Equal(t, 4, report.Dropped)
	assert.Equal(t, 6, report.Succeeded())
	assert.Empty(t, f.calls[images[6].URL])
}

// cancellingFetcher cancels the build on its first call.
type cancellingFetcher struct {
	cancel context.CancelFunc
}

func (f cancellingFetcher) Fetch(context.Context, string, int) ([]byte, error) {
	f.cancel()
	return nil, fmt.Errorf("%w: %v", fetch.ErrFetch, context.Canceled)
}

func TestBuildCancelledKeepsArtifacts(t *testing.T) {
	dir := t.TempDir()
	previous := filepath.Join(dir, "left", BinaryFilename)
	require.NoError(t, os.MkdirAll(filepath.Dir(previous), 0755))
	require.NoError(t, ioutil.WriteFile(previous, []byte("previous build"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, obs := newTestGallery(t, sourceImages(8), cancellingFetcher{cancel}, DefaultConfig())
	report, err := g.Build(ctx, Query{}, dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, report)

	b, err := ioutil.ReadFile(previous)
	require.NoError(t, err)
	assert.Equal(t, "previous build", string(b))

	for _, d := range []string{"centerLeft", "centerRight", "right"} {
		_, err := os.Stat(filepath.Join(dir, d, BinaryFilename))
		assert.True(t, os.IsNotExist(err), d)
	}
	assert.Empty(t, obs.reports)
}

func TestBuildCatalogError(t *testing.T) {
	g := New(&staticCatalog{err: errors.New("database is locked")}, newFakeFetcher(), DefaultConfig(), testLogger())
	_, err := g.Build(context.Background(), Query{}, t.TempDir())
	assert.Error(t, err)
}

func TestBuildLocked(t *testing.T) {
	dir := t.TempDir()
	lock := flock.New(filepath.Join(dir, lockFilename))
	locked, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer lock.Unlock()

	g, _ := newTestGallery(t, sourceImages(1), newFakeFetcher(), DefaultConfig())
	_, err = g.Build(context.Background(), Query{}, dir)
	assert.Error(t, err)
}

func TestDeviceStatusString(t *testing.T) {
	for s, want := range map[DeviceStatus]string{
		StatusEmpty:     "empty",
		StatusPartial:   "partial",
		StatusComplete:  "complete",
		DeviceStatus(9): "DeviceStatus(9)",
	} {
		assert.Equal(t, want, fmt.Sprint(s))
	}
}
