package config

import (
	"os"
	"strconv"
	"time"
)

// Options collects the tunables of the planning engine.
// All of them are loadable from environment variables with sane defaults.
type Options struct {
	// WalkingSpeed is the assumed pedestrian speed in meters per second.
	WalkingSpeed float64

	// TransferMargin is the minimum slack required between the estimated
	// arrival at a transfer site and the second bus departure.
	TransferMargin time.Duration

	// MaxWalkingTime bounds how far from origin/destination bus sites are
	// searched (radius = WalkingSpeed * MaxWalkingTime).
	MaxWalkingTime time.Duration

	// APIDelay is the pacing delay between successive transit-feed requests.
	APIDelay time.Duration

	// FeedTimeout is the per-call timeout for a single departures request.
	FeedTimeout time.Duration

	// PlanTimeout is the outer deadline for a whole planning request.
	PlanTimeout time.Duration

	// BusSearchMaxDuration rejects bus rides longer than this.
	BusSearchMaxDuration time.Duration

	// TransferInterStopAvg is the average time between consecutive stops,
	// used to estimate arrivals beyond the feed's forecast window.
	TransferInterStopAvg time.Duration

	// TransferSearchDepth bounds the forward walk of the first bus leg.
	TransferSearchDepth int

	// DestinationSearchDepth bounds the forward walk of the second bus leg.
	DestinationSearchDepth int

	// StopsAlongDepth bounds intermediate-stop enumeration for display.
	StopsAlongDepth int

	// FeedBaseURL is the base URL of the transit departures API.
	FeedBaseURL string

	// GreeneryBaseURL is the base URL of the external GVI computation service.
	GreeneryBaseURL string
}

// Defaults returns the built-in option set.
func Defaults() Options {
	return Options{
		WalkingSpeed:           1.4,
		TransferMargin:         60 * time.Second,
		MaxWalkingTime:         1200 * time.Second,
		APIDelay:               500 * time.Millisecond,
		FeedTimeout:            10 * time.Second,
		PlanTimeout:            120 * time.Second,
		BusSearchMaxDuration:   3600 * time.Second,
		TransferInterStopAvg:   90 * time.Second,
		TransferSearchDepth:    10,
		DestinationSearchDepth: 20,
		StopsAlongDepth:        50,
		FeedBaseURL:            "https://transport.integration.sl.se/v1",
		GreeneryBaseURL:        "http://localhost:8100",
	}
}

// FromEnv loads options from environment variables, falling back to Defaults.
func FromEnv() Options {
	o := Defaults()

	o.WalkingSpeed = getFloat("WALKING_SPEED", o.WalkingSpeed)
	o.TransferMargin = getSeconds("TRANSFER_MARGIN", o.TransferMargin)
	o.MaxWalkingTime = getSeconds("MAX_WALKING_TIME", o.MaxWalkingTime)
	o.APIDelay = getMillis("API_DELAY_MS", o.APIDelay)
	o.FeedTimeout = getSeconds("FEED_TIMEOUT", o.FeedTimeout)
	o.PlanTimeout = getSeconds("PLAN_TIMEOUT", o.PlanTimeout)
	o.BusSearchMaxDuration = getSeconds("BUS_SEARCH_MAX_DURATION", o.BusSearchMaxDuration)
	o.TransferInterStopAvg = getSeconds("TRANSFER_INTER_STOP_AVG", o.TransferInterStopAvg)
	o.TransferSearchDepth = getInt("TRANSFER_SEARCH_DEPTH", o.TransferSearchDepth)
	o.DestinationSearchDepth = getInt("DESTINATION_SEARCH_DEPTH", o.DestinationSearchDepth)
	o.StopsAlongDepth = getInt("STOPS_ALONG_DEPTH", o.StopsAlongDepth)

	if v := os.Getenv("FEED_BASE_URL"); v != "" {
		o.FeedBaseURL = v
	}
	if v := os.Getenv("GREENERY_BASE_URL"); v != "" {
		o.GreeneryBaseURL = v
	}

	return o
}

// MaxWalkingDistance is the site search radius in meters.
func (o Options) MaxWalkingDistance() float64 {
	return o.WalkingSpeed * o.MaxWalkingTime.Seconds()
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func getSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func getMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}
