package record

import (
	"fmt"
	"time"
)

// RequestError is a client-input validation failure (maps to a 400).
type RequestError struct {
	message string
}

func (e *RequestError) Error() string { return e.message }

func newValidationError(msg string) error { return &RequestError{message: msg} }

// Service assembles and seals provenance records for a trust framework.
type Service struct {
	trustFramework string
	scheme         string
}

// NewService creates a record assembly service bound to a trust framework
// and its scheme catalogue (the base URL under which licences, standards and
// assurance terms are published).
func NewService(trustFrameworkURL, schemeURL string) *Service {
	return &Service{
		trustFramework: trustFrameworkURL,
		scheme:         schemeURL,
	}
}

// scheme catalogue paths, versioned with their publication date
const (
	consumptionLicencePath  = "licence/energy-consumption-data/2024-12-05"
	consumptionStandardPath = "standard/energy-consumption-data/2024-12-05"
	emissionsLicencePath    = "licence/emissions-report/2024-12-05"
	emissionsStandardPath   = "standard/emissions-report/2024-12-05"
	emissionsProcessPath    = "process/emissions-calculations/2024-12-05"

	meterSourceTypePath = "source-type/Meter"
	gridSourceTypePath  = "source-type/GridCarbonIntensity"

	smartMeterAssurancePath = "assurance/data-source/SmartMeter"
	completeDataPath        = "assurance/missing-data/Complete"
	substitutedDataPath     = "assurance/missing-data/Substituted"
)

func (s *Service) schemeTerm(path string) string {
	return fmt.Sprintf("%s/%s", s.scheme, path)
}

// timestamp formats a permission timestamp at second precision.
func timestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// datestamp formats a metering period boundary.
func datestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02") + "Z"
}

func requireFields(fields map[string]string) error {
	for name, value := range fields {
		if value == "" {
			return newValidationError(fmt.Sprintf("%s is required", name))
		}
	}
	return nil
}

func requireDateRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return newValidationError("fromDate and toDate are required")
	}
	if !to.After(from) {
		return newValidationError("toDate must be after fromDate")
	}
	return nil
}

func requirePermissionWindow(granted, expires time.Time) error {
	if granted.IsZero() || expires.IsZero() {
		return newValidationError("permission granted and expiry timestamps are required")
	}
	if !expires.After(granted) {
		return newValidationError("permission expiry must be after the grant timestamp")
	}
	return nil
}
