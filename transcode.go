package ledgallery

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/ledgallery/ledgallery/fetch"
	"github.com/ledgallery/ledgallery/resample"
	"github.com/ledgallery/ledgallery/rgb565"
	"github.com/ledgallery/ledgallery/serpentine"
	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Image states. Every image starts pending and ends in success or failure.
const (
	StatePending    = "pending"
	StateFetching   = "fetching"
	StateResampling = "resampling"
	StateEncoding   = "encoding"
	StateSuccess    = "success"
	StateFailure    = "failure"
)

const (
	eventFetch    = "fetch"
	eventResample = "resample"
	eventEncode   = "encode"
	eventSucceed  = "succeed"
	eventFail     = "fail"
)

// Fetcher downloads the raw bytes behind a URL making at most maxAttempts
// attempts. *fetch.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, maxAttempts int) ([]byte, error)
}

func newImageFSM(log logrus.FieldLogger) *fsm.FSM {
	return fsm.NewFSM(
		StatePending,
		fsm.Events{
			{Name: eventFetch, Src: []string{StatePending}, Dst: StateFetching},
			{Name: eventResample, Src: []string{StateFetching}, Dst: StateResampling},
			{Name: eventEncode, Src: []string{StateResampling}, Dst: StateEncoding},
			{Name: eventSucceed, Src: []string{StateEncoding}, Dst: StateSuccess},
			{Name: eventFail, Src: []string{StatePending, StateFetching, StateResampling, StateEncoding}, Dst: StateFailure},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				log.WithFields(logrus.Fields{
					"from": e.Src,
					"to":   e.Dst,
				}).Debug("Image state")
			},
		},
	)
}

// job carries one image through the pipeline once.
type job struct {
	image SourceImage
	state *fsm.FSM
	log   logrus.FieldLogger
}

func (j *job) advance(event string) {
	if err := j.state.Event(event); err != nil {
		// Only reachable through a programming error in the pipeline below
		j.log.WithError(err).Errorf("Invalid %s from %s", event, j.state.Current())
	}
}

func (j *job) fail(kind FailureKind, err error) Result {
	j.advance(eventFail)
	return Result{
		Image: j.image,
		Failure: &Failure{
			Image: j.image,
			Kind:  kind,
			Err:   err,
		},
	}
}

// Transcoder runs images through fetch, resample and encode, and applies the
// retry policy for a device's images.
type Transcoder struct {
	fetcher Fetcher
	cfg     *Config
	sem     *semaphore.Weighted
	work    *semaphore.Weighted
	logger  logrus.FieldLogger
	sleep   func(context.Context, time.Duration) error
}

// NewTranscoder returns a Transcoder. The number of fetches in flight across
// every call is bounded by cfg.Concurrency and the number of images being
// decoded, resampled and encoded at once by the number of CPUs.
func NewTranscoder(f Fetcher, cfg *Config, logger logrus.FieldLogger) *Transcoder {
	return &Transcoder{
		fetcher: f,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		work:    semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		logger:  logger,
		sleep:   fetch.Sleep,
	}
}

func (t *Transcoder) fetch(ctx context.Context, url string, attempts int) ([]byte, error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", fetch.ErrFetch, err)
	}
	defer t.sem.Release(1)

	return t.fetcher.Fetch(ctx, url, attempts)
}

// Encode linearises a raster in strip order and packs every pixel.
func Encode(m image.Image) []uint16 {
	seq := serpentine.Map(m)
	pixels := make([]uint16, len(seq))
	for i, c := range seq {
		pixels[i] = rgb565.Encode(c.R, c.G, c.B)
	}
	return pixels
}

// Transcode takes one image from url through the whole pipeline, allowing
// the fetch up to attempts attempts. Every error is returned as a failed
// Result; no partial output is kept.
func (t *Transcoder) Transcode(ctx context.Context, img SourceImage, url string, attempts int) Result {
	log := t.logger.WithField("image", img.ID)
	j := &job{
		image: img,
		state: newImageFSM(log),
		log:   log,
	}

	if url == "" {
		return j.fail(NoURL, ErrNoURL)
	}

	j.advance(eventFetch)
	raw, err := t.fetch(ctx, url, attempts)
	if err != nil {
		return j.fail(kindOf(err), err)
	}

	if err := t.work.Acquire(ctx, 1); err != nil {
		return j.fail(FetchError, fmt.Errorf("%w: %v", fetch.ErrFetch, err))
	}
	defer t.work.Release(1)

	j.advance(eventResample)
	src, err := DecodeImage(raw, t.cfg.MaxSourcePixels)
	if err != nil {
		return j.fail(DecodeError, err)
	}
	raster := resample.Resample(src, t.cfg.Width, t.cfg.Height)

	j.advance(eventEncode)
	pixels := Encode(raster)

	j.advance(eventSucceed)
	return Result{
		Image:  img,
		Pixels: pixels,
	}
}

// pass transcodes every image concurrently. Results are in input order.
func (t *Transcoder) pass(ctx context.Context, d Device, images []SourceImage, attempts int, hint *SizeHint, obs Observer) []Result {
	results := make([]Result, len(images))

	var wg sync.WaitGroup
	wg.Add(len(images))
	for i, img := range images {
		go func(i int, img SourceImage) {
			defer wg.Done()

			url := img.URL
			if hint != nil {
				url = hint.Apply(url)
			}
			results[i] = t.Transcode(ctx, img, url, attempts)
			obs.ImageDone(d, results[i])
		}(i, img)
	}
	wg.Wait()

	return results
}

// DeviceOutcome is what remains once a device's images have been through
// the first pass and every retry round.
type DeviceOutcome struct {
	// Succeeded holds first pass successes in assignment order followed by
	// each retry round's successes
	Succeeded []Result
	// Failed holds the last failure of every image that never succeeded
	Failed []*Failure
}

func split(results []Result) (ok []Result, failed []*Failure) {
	for _, r := range results {
		if r.OK() {
			ok = append(ok, r)
		} else {
			failed = append(failed, r.Failure)
		}
	}
	return ok, failed
}

// TranscodeDevice runs the first pass over the assignment and then up to
// RetryRounds rounds over whatever failed, using the retry size hint and
// attempt budget. Failures never stop the other images.
func (t *Transcoder) TranscodeDevice(ctx context.Context, a Assignment, obs Observer) DeviceOutcome {
	if obs == nil {
		obs = NopObserver
	}
	log := t.logger.WithField("device", a.Device.Name)

	ok, failed := split(t.pass(ctx, a.Device, a.Images, t.cfg.FirstPassAttempts, nil, obs))
	log.WithFields(logrus.Fields{
		"succeeded": len(ok),
		"failed":    len(failed),
	}).Info("First pass complete")

	for round := 1; round <= t.cfg.RetryRounds && len(failed) > 0; round++ {
		obs.RetryRound(a.Device, round, len(failed))

		pending := make([]SourceImage, len(failed))
		for i, f := range failed {
			pending[i] = f.Image
		}

		var recovered []Result
		recovered, failed = split(t.pass(ctx, a.Device, pending, t.cfg.RetryAttempts, &t.cfg.RetrySizeHint, obs))
		ok = append(ok, recovered...)

		log.WithFields(logrus.Fields{
			"round":     round,
			"recovered": len(recovered),
			"failed":    len(failed),
		}).Info("Retry round complete")

		if len(failed) > 0 && round < t.cfg.RetryRounds {
			if err := t.sleep(ctx, time.Duration(t.cfg.RetryCooldown)); err != nil {
				break
			}
		}
	}

	for _, f := range failed {
		log.WithFields(logrus.Fields{
			"image": f.Image.ID,
			"kind":  f.Kind,
		}).WithError(f.Err).Warn("Image failed permanently")
	}

	return DeviceOutcome{
		Succeeded: ok,
		Failed:    failed,
	}
}
