package ledgallery

// Observer receives progress while a build runs. Methods may be called from
// several goroutines at once. Nothing in the pipeline depends on what an
// Observer does.
type Observer interface {
	// DeviceStarted is called once per device before its first pass
	DeviceStarted(d Device, images int)
	// ImageDone is called for every image attempt that reached a terminal
	// state, including failures that will be retried
	ImageDone(d Device, r Result)
	// RetryRound is called before each retry round
	RetryRound(d Device, round, pending int)
	// DeviceDone is called once the device's bank is final
	DeviceDone(r DeviceReport)
}

type nopObserver struct{}

func (nopObserver) DeviceStarted(Device, int)   {}
func (nopObserver) ImageDone(Device, Result)    {}
func (nopObserver) RetryRound(Device, int, int) {}
func (nopObserver) DeviceDone(DeviceReport)     {}

// NopObserver discards all progress.
var NopObserver Observer = nopObserver{}
