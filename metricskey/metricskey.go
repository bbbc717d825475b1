package metricskey

import "github.com/effective-security/metrics"

// Perf
var (
	// PerfKeySetFetch is perf metric
	PerfKeySetFetch = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_keyset_fetch",
		Help:         "perf_keyset_fetch provides the sample metrics of discovery and JWKS requests",
		RequiredTags: []string{"endpoint", "status"},
	}

	// PerfTokenValidation is perf metric
	PerfTokenValidation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_token_validation",
		Help:         "perf_token_validation provides the sample metrics of token validations",
		RequiredTags: []string{"result"},
	}
)

// Metrics returns slice of metrics from this repo
var Metrics = []*metrics.Describe{
	&PerfKeySetFetch,
	&PerfTokenValidation,
}
