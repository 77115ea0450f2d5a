package video

import (
	"github.com/saturnino-fabrica-de-software/findperson/internal/feed"
	"github.com/saturnino-fabrica-de-software/findperson/internal/finder"
)

// Media bundles the OpenCV pieces a finder session needs: captures,
// trackers and snapshot rendering
type Media struct {
	Options Options
}

// NewMedia returns a Media reading frames downscaled to maxWidth
func NewMedia(maxWidth int) *Media {
	return &Media{Options: Options{MaxWidth: maxWidth}}
}

// Open opens a capture on source
func (m *Media) Open(source string) (feed.Source, error) {
	return Open(source, m.Options)
}

// Trackers validates kind and returns a factory for it
func (m *Media) Trackers(kind string) (finder.TrackerFactory, error) {
	k, err := ParseTrackerKind(kind)
	if err != nil {
		return nil, err
	}
	return TrackerFactory(k), nil
}

// Annotate renders a result over its frame as JPEG
func (m *Media) Annotate(frame finder.Frame, res finder.Result) ([]byte, error) {
	return Annotate(frame, res)
}
