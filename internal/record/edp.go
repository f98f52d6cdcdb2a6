package record

// edp.go - the energy data provider workflow.
//
// The EDP seals a three-step record: the end user's consent, the smart meter
// origin of the readings, and the transfer of those readings to the carbon
// accounting provider.

import (
	"context"

	"github.com/information-sharing-networks/provenance-demo/internal/provenance"
)

// CreateEDPRecord assembles and seals an EDP provenance record, returning the
// encoded artifact that travels with the meter readings.
func (s *Service) CreateEDPRecord(ctx context.Context, signer provenance.Signer, req *EDPRecordRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rec, err := provenance.New(s.trustFramework)
	if err != nil {
		return nil, err
	}

	// consent given by the end user
	permissionID, err := rec.AddStep(&provenance.PermissionStep{
		Scheme:    s.scheme,
		Timestamp: timestamp(req.PermissionGranted),
		Account:   req.Account,
		Allows: map[string][]string{
			"licences": {s.schemeTerm(consumptionLicencePath)},
		},
		Expires: timestamp(req.PermissionExpires),
	})
	if err != nil {
		return nil, err
	}

	// where the readings came from
	originID, err := rec.AddStep(&provenance.OriginStep{
		Scheme:        s.scheme,
		SourceType:    s.schemeTerm(meterSourceTypePath),
		Origin:        req.OriginURL,
		OriginLicence: req.OriginLicenceURL,
		External:      true,
		Permissions:   []string{permissionID},
		SchemeData: map[string]any{
			"meteringPeriod": map[string]any{
				"from": datestamp(req.FromDate),
				"to":   datestamp(req.ToDate),
			},
		},
		Assurance: map[string]any{
			"dataSource": s.schemeTerm(smartMeterAssurancePath),
		},
	})
	if err != nil {
		return nil, err
	}

	// hand-off to the CAP
	if _, err := rec.AddStep(&provenance.TransferStep{
		Scheme:   s.scheme,
		Of:       originID,
		To:       req.CAPMember,
		Standard: s.schemeTerm(consumptionStandardPath),
		Licence:  s.schemeTerm(consumptionLicencePath),
		Service:  req.ServiceURL,
		Path:     "/readings",
		Parameters: map[string]any{
			"measure": "import",
			"from":    datestamp(req.FromDate),
			"to":      datestamp(req.ToDate),
		},
		Permissions: []string{permissionID},
		Transaction: req.FAPIID,
	}); err != nil {
		return nil, err
	}

	return rec.Seal(ctx, signer)
}
