package ledgallery

import (
	"errors"
	"fmt"

	"github.com/ledgallery/ledgallery/fetch"
)

// FailureKind classifies why an image could not be transcoded.
type FailureKind int

const (
	// FetchError covers network and HTTP failures
	FetchError FailureKind = iota + 1
	// RateLimited means the host kept asking us to back off
	RateLimited
	// DecodeError means the fetched bytes were not a usable image
	DecodeError
	// NoURL means the catalog entry had nothing to fetch
	NoURL
)

func (k FailureKind) String() string {
	switch k {
	case FetchError:
		return "fetch error"
	case RateLimited:
		return "rate limited"
	case DecodeError:
		return "decode error"
	case NoURL:
		return "no url"
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

var (
	// ErrNoURL is the cause of NoURL failures.
	ErrNoURL = errors.New("ledgallery: image has no url")

	// ErrDecode wraps image decoding failures.
	ErrDecode = errors.New("ledgallery: cannot decode image")
)

// Failure records a permanently or temporarily failed image.
type Failure struct {
	Image SourceImage
	Kind  FailureKind
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("image %s: %s: %v", f.Image.ID, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// kindOf maps a pipeline error onto a FailureKind.
func kindOf(err error) FailureKind {
	switch {
	case errors.Is(err, fetch.ErrRateLimited):
		return RateLimited
	case errors.Is(err, ErrDecode):
		return DecodeError
	case errors.Is(err, ErrNoURL):
		return NoURL
	}
	return FetchError
}
