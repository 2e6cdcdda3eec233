package ledgallery

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/ledgallery/ledgallery/bank"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// BinaryFilename is the raw image table written for each device
	BinaryFilename = "images.bin"
	// HeaderFilename is the firmware header written for each device
	HeaderFilename = "images.h"

	lockFilename = ".ledgallery.lock"
)

// DeviceStatus summarises how a device's build went.
type DeviceStatus int

const (
	// StatusEmpty means no image succeeded and nothing was written
	StatusEmpty DeviceStatus = iota
	// StatusPartial means some images failed permanently
	StatusPartial
	// StatusComplete means every assigned image is in the bank
	StatusComplete
)

func (s DeviceStatus) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusPartial:
		return "partial"
	case StatusComplete:
		return "complete"
	}
	return fmt.Sprintf("DeviceStatus(%d)", int(s))
}

// DeviceReport describes the bank built for one device.
type DeviceReport struct {
	Device   Device
	Assigned int
	Bank     *bank.Bank
	Failed   []*Failure
	Status   DeviceStatus

	// Paths of the written artifacts, empty when Status is StatusEmpty
	BinaryPath string
	HeaderPath string
}

// Succeeded returns the number of images in the device's bank.
func (r DeviceReport) Succeeded() int {
	if r.Bank == nil {
		return 0
	}
	return r.Bank.Len()
}

// Report describes a whole build.
type Report struct {
	RunID string
	// Selected is how many images the catalog returned
	Selected int
	// Dropped is how many of those were cut by the image cap
	Dropped int
	Devices []DeviceReport
}

// Succeeded returns the number of images written across all devices.
func (r *Report) Succeeded() int {
	var n int
	for _, d := range r.Devices {
		n += d.Succeeded()
	}
	return n
}

// Failed returns the number of images that failed permanently.
func (r *Report) Failed() int {
	var n int
	for _, d := range r.Devices {
		n += len(d.Failed)
	}
	return n
}

// writeFile writes path through a temporary file in the same directory so
// a partially written artifact is never visible.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := ioutil.TempFile(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

func writeArtifacts(dir string, d Device, b *bank.Bank) (string, string, error) {
	devDir := filepath.Join(dir, d.Name)
	if err := os.MkdirAll(devDir, 0755); err != nil {
		return "", "", err
	}

	binPath := filepath.Join(devDir, BinaryFilename)
	if err := writeFile(binPath, func(w io.Writer) error {
		return bank.Encode(w, b)
	}); err != nil {
		return "", "", errors.Wrapf(err, "write %s", binPath)
	}

	hdrPath := filepath.Join(devDir, HeaderFilename)
	if err := writeFile(hdrPath, func(w io.Writer) error {
		return bank.WriteHeader(w, d.Name, b)
	}); err != nil {
		return "", "", errors.Wrapf(err, "write %s", hdrPath)
	}

	return binPath, hdrPath, nil
}

func (g *Gallery) buildDevice(ctx context.Context, a Assignment, dir string, log logrus.FieldLogger) (DeviceReport, error) {
	log = log.WithField("device", a.Device.Name)
	g.observer.DeviceStarted(a.Device, len(a.Images))

	out := g.transcoder.TranscodeDevice(ctx, a, g.observer)
	if err := ctx.Err(); err != nil {
		// Cancelled images are not failures, keep the previous artifacts
		return DeviceReport{}, errors.Wrap(err, "build interrupted")
	}

	b := bank.New(g.cfg.Width, g.cfg.Height)
	for _, r := range out.Succeeded {
		if err := b.Add(r.Pixels); err != nil {
			return DeviceReport{}, errors.Wrapf(err, "image %s", r.Image.ID)
		}
	}

	r := DeviceReport{
		Device:   a.Device,
		Assigned: len(a.Images),
		Bank:     b,
		Failed:   out.Failed,
	}

	switch {
	case b.Len() == 0:
		r.Status = StatusEmpty
		log.WithField("assigned", r.Assigned).Warn("No images transcoded, skipping device")
	case len(out.Failed) > 0:
		r.Status = StatusPartial
	default:
		r.Status = StatusComplete
	}

	if r.Status != StatusEmpty {
		var err error
		if r.BinaryPath, r.HeaderPath, err = writeArtifacts(dir, a.Device, b); err != nil {
			return DeviceReport{}, err
		}
		log.WithFields(logrus.Fields{
			"images": b.Len(),
			"failed": len(out.Failed),
			"size":   humanize.Bytes(uint64(b.Size())),
			"status": r.Status,
		}).Info("Wrote image bank")
	}

	g.observer.DeviceDone(r)
	return r, nil
}

// Build reads the catalog, deals the images out across the devices and
// writes an image bank for every device with at least one transcoded image
// under dir/<device>/. Devices are processed in parallel. Image failures are
// reported, not returned; an error means the build itself could not proceed.
// A cancelled build returns the context's error and leaves the artifacts of
// every device not yet written untouched.
func (g *Gallery) Build(ctx context.Context, q Query, dir string) (*Report, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create output directory")
	}

	lock := flock.New(filepath.Join(dir, lockFilename))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "lock output directory")
	}
	if !locked {
		return nil, fmt.Errorf("another build is writing to %s", dir)
	}
	defer lock.Unlock()

	images, err := g.catalog.Images(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}

	report := &Report{
		RunID:    uuid.New().String(),
		Selected: len(images),
	}
	log := g.logger.WithField("run", report.RunID)

	images = Truncate(images, g.cfg.MaxImages)
	if report.Dropped = report.Selected - len(images); report.Dropped > 0 {
		log.WithField("dropped", report.Dropped).Infof("Limited to the first %d images", len(images))
	}

	assignments, err := Partition(images, g.Devices())
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		log.WithFields(logrus.Fields{
			"device": a.Device.Name,
			"images": len(a.Images),
		}).Debug("Assigned images")
	}

	report.Devices = make([]DeviceReport, len(assignments))

	eg, ctx := errgroup.WithContext(ctx)
	for i, a := range assignments {
		i, a := i, a
		eg.Go(func() error {
			r, err := g.buildDevice(ctx, a, dir, log)
			if err != nil {
				return errors.Wrapf(err, "device %s", a.Device.Name)
			}
			report.Devices[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"succeeded": report.Succeeded(),
		"failed":    report.Failed(),
	}).Info("Build complete")

	return report, nil
}
