package matching

import "github.com/campusfound/matchd/internal/domain"

// Run origins, used as metric labels and log fields.
const (
	OriginHTTP           = "http"
	OriginRequestCreated = "request_created"
	OriginFoundCreated   = "found_created"
	OriginBackfill       = "backfill"
)

// Options control a single matching run. Zero values mean "use the
// configured default", except DistanceThreshold: nil means the default,
// while an explicit 0 keeps only exact-direction candidates.
type Options struct {
	Limit             int
	DistanceThreshold *float64
	Prefilters        domain.Prefilters
	Origin            string
}

// WithThreshold returns a copy of o with the threshold set explicitly.
func (o Options) WithThreshold(t float64) Options {
	o.DistanceThreshold = &t
	return o
}

// Defaults are the service-level bounds applied during normalization.
type Defaults struct {
	Limit     int
	MaxLimit  int
	Threshold float64
}

// normalize fills defaults and clamps out-of-range values. Callers that
// need strict validation (the HTTP layer) reject before reaching here;
// internal callers get safe clamping.
func (o Options) normalize(d Defaults) Options {
	if o.Limit <= 0 {
		o.Limit = d.Limit
	}
	if o.Limit > d.MaxLimit {
		o.Limit = d.MaxLimit
	}
	t := d.Threshold
	switch {
	case o.DistanceThreshold == nil || *o.DistanceThreshold < 0:
	case *o.DistanceThreshold > 2:
		t = 2
	default:
		t = *o.DistanceThreshold
	}
	o.DistanceThreshold = &t
	if o.Origin == "" {
		o.Origin = OriginHTTP
	}
	return o
}
