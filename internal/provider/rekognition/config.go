package rekognition

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

// Config holds configuration for AWS Rekognition provider
type Config struct {
	Region string
	// MaxAttempts bounds the SDK retries of a throttled call. Sessions call
	// Rekognition once per detection frame, so throttling is common.
	MaxAttempts int
	// QualityFilter is passed to CompareFaces: NONE, AUTO, LOW, MEDIUM or HIGH.
	// Video frames are often blurry, NONE keeps every face.
	QualityFilter types.QualityFilter
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Region:        "us-east-1",
		MaxAttempts:   5,
		QualityFilter: types.QualityFilterAuto,
	}
}

// Validate checks the region and the quality filter
func (c Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("rekognition: region is required")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("rekognition: max attempts must not be negative")
	}
	if c.QualityFilter == "" {
		return nil
	}
	for _, q := range types.QualityFilter("").Values() {
		if q == c.QualityFilter {
			return nil
		}
	}
	return fmt.Errorf("rekognition: unknown quality filter %q", c.QualityFilter)
}
