package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/ledgallery/ledgallery"
	"github.com/schollz/progressbar/v3"
)

// progressObserver drives a single progress bar across all devices. Retry
// rounds extend the bar by the number of images being retried.
type progressObserver struct {
	mu     sync.Mutex
	bar    *progressbar.ProgressBar
	total  int
	ok     int
	failed int
}

func newProgressObserver(w io.Writer) *progressObserver {
	return &progressObserver{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("Reading catalog"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("img"),
			progressbar.OptionClearOnFinish(),
		),
	}
}

func (p *progressObserver) grow(n int) {
	p.total += n
	p.bar.ChangeMax(p.total)
}

func (p *progressObserver) DeviceStarted(d ledgallery.Device, images int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grow(images)
	p.bar.Describe("Transcoding")
}

func (p *progressObserver) ImageDone(d ledgallery.Device, r ledgallery.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.OK() {
		p.ok++
	}
	p.bar.Add(1)
}

func (p *progressObserver) RetryRound(d ledgallery.Device, round, pending int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grow(pending)
	p.bar.Describe(fmt.Sprintf("Retrying %d on %s (%d)", pending, d.Name, round))
}

func (p *progressObserver) DeviceDone(r ledgallery.DeviceReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed += len(r.Failed)
	p.bar.Describe(fmt.Sprintf("%d ok, %d failed", p.ok, p.failed))
}

func (p *progressObserver) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.Finish()
}
