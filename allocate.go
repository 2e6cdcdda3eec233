package ledgallery

import "errors"

// MaxImages is the total number of images that fits across all devices'
// flash.
const MaxImages = 2000

// Assignment is the contiguous run of catalog entries given to one device.
type Assignment struct {
	Device Device
	Images []SourceImage
}

// Truncate drops everything past the first max images. A max of zero or
// less disables the cap.
func Truncate(images []SourceImage, max int) []SourceImage {
	if max > 0 && len(images) > max {
		return images[:max]
	}
	return images
}

// Partition splits images across devices in input order. Every device gets
// len(images)/len(devices) images and the first len(images)%len(devices)
// devices get one more.
func Partition(images []SourceImage, devices []Device) ([]Assignment, error) {
	if len(devices) == 0 {
		return nil, errors.New("ledgallery: no devices to partition across")
	}

	base := len(images) / len(devices)
	remainder := len(images) % len(devices)

	assignments := make([]Assignment, 0, len(devices))
	start := 0
	for i, d := range devices {
		n := base
		if i < remainder {
			n++
		}
		assignments = append(assignments, Assignment{
			Device: d,
			Images: images[start : start+n : start+n],
		})
		start += n
	}
	return assignments, nil
}

// Devices returns devices numbered in the order of names.
func Devices(names ...string) []Device {
	devices := make([]Device, len(names))
	for i, n := range names {
		devices[i] = Device{Index: i, Name: n}
	}
	return devices
}
