package sizing

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/yungbote/coursesync-backend/internal/domain/learning"
)

const (
	KiB = int64(1024)
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// Config holds the advisory constants used by the estimator.
type Config struct {
	MetadataBytes        int64   `yaml:"metadata_bytes"`
	VideoBytesPerMinute  int64   `yaml:"video_bytes_per_minute"`
	DefaultVideoMinutes  float64 `yaml:"default_video_minutes"`
	DefaultResourceBytes int64   `yaml:"default_resource_bytes"`
	QuizBytes            int64   `yaml:"quiz_bytes"`
}

func DefaultConfig() Config {
	return Config{
		MetadataBytes:        100 * KiB,
		VideoBytesPerMinute:  10 * MiB, // HD
		DefaultVideoMinutes:  10,
		DefaultResourceBytes: 1 * MiB,
		QuizBytes:            50 * KiB,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MetadataBytes < 0:
		return fmt.Errorf("metadata_bytes must be >= 0")
	case c.VideoBytesPerMinute < 0:
		return fmt.Errorf("video_bytes_per_minute must be >= 0")
	case c.DefaultVideoMinutes < 0 || math.IsNaN(c.DefaultVideoMinutes) || math.IsInf(c.DefaultVideoMinutes, 0):
		return fmt.Errorf("default_video_minutes must be a finite value >= 0")
	case c.DefaultResourceBytes < 0:
		return fmt.Errorf("default_resource_bytes must be >= 0")
	case c.QuizBytes < 0:
		return fmt.Errorf("quiz_bytes must be >= 0")
	}
	return nil
}

// EstimationError reports a condition the estimator could not turn into a
// trustworthy number. Unparseable durations never produce one.
type EstimationError struct {
	CourseID string
	Reason   string
	Err      error
}

func (e *EstimationError) Error() string {
	msg := "size estimation failed"
	if e.CourseID != "" {
		msg += " for course " + e.CourseID
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EstimationError) Unwrap() error { return e.Err }

type Estimator struct {
	cfg Config
}

func NewEstimator(cfg Config) *Estimator {
	return &Estimator{cfg: cfg}
}

func (e *Estimator) Config() Config { return e.cfg }

// Estimate returns the expected on-device footprint of a course bundle in bytes.
// The course must have its additional resources and quizzes loaded.
func (e *Estimator) Estimate(course *learning.Course) (total int64, err error) {
	if course == nil {
		return 0, &EstimationError{Reason: "course is nil"}
	}
	courseID := course.ID.String()
	defer func() {
		if r := recover(); r != nil {
			total = 0
			err = &EstimationError{CourseID: courseID, Reason: "unexpected failure", Err: fmt.Errorf("%v", r)}
		}
	}()

	minutes := e.minutes(course.Duration)
	video := math.Round(minutes * float64(e.cfg.VideoBytesPerMinute))
	if video >= math.MaxInt64 {
		return 0, &EstimationError{CourseID: courseID, Reason: "video size overflows int64"}
	}

	acc := accumulator{}
	acc.add(e.cfg.MetadataBytes)
	acc.add(int64(video))

	for _, r := range course.AdditionalResources {
		if r == nil {
			continue
		}
		// Zero is treated as undeclared.
		if r.FileSize == nil || *r.FileSize == 0 {
			acc.add(e.cfg.DefaultResourceBytes)
			continue
		}
		if *r.FileSize < 0 {
			return 0, &EstimationError{
				CourseID: courseID,
				Reason:   fmt.Sprintf("resource %s declares negative size %d", r.ID, *r.FileSize),
			}
		}
		acc.add(*r.FileSize)
	}

	quizzes := int64(len(course.Quizzes))
	if quizzes > 0 && e.cfg.QuizBytes > 0 && quizzes > math.MaxInt64/e.cfg.QuizBytes {
		return 0, &EstimationError{CourseID: courseID, Reason: "quiz size overflows int64"}
	}
	acc.add(quizzes * e.cfg.QuizBytes)

	if acc.overflow {
		return 0, &EstimationError{CourseID: courseID, Reason: "total size overflows int64"}
	}
	return acc.sum, nil
}

func (e *Estimator) minutes(duration string) float64 {
	if strings.TrimSpace(duration) == "" {
		return e.cfg.DefaultVideoMinutes
	}
	m, ok := ParseDurationMinutes(duration)
	if !ok {
		return e.cfg.DefaultVideoMinutes
	}
	return m
}

type accumulator struct {
	sum      int64
	overflow bool
}

func (a *accumulator) add(v int64) {
	if a.overflow {
		return
	}
	if v > 0 && a.sum > math.MaxInt64-v {
		a.overflow = true
		return
	}
	a.sum += v
}

// ParseDurationMinutes accepts "HH:MM:SS", "MM:SS" or a bare number of minutes.
// ok is false for anything else, including negative or non-finite values.
func ParseDurationMinutes(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	nums := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return 0, false
		}
		nums = append(nums, f)
	}
	switch len(nums) {
	case 3:
		return nums[0]*60 + nums[1] + nums[2]/60, true
	case 2:
		return nums[0] + nums[1]/60, true
	case 1:
		return nums[0], true
	default:
		return 0, false
	}
}

var units = []string{"B", "KB", "MB", "GB"}

// Format renders a byte count with 1024-based units and two decimals.
func Format(bytes int64) string {
	v := float64(bytes)
	i := 0
	for i < len(units)-1 && math.Abs(v) >= 1024 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", v, units[i])
}
