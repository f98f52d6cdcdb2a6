package record

// cap.go - the carbon accounting provider workflow.
//
// The CAP re-opens the EDP's sealed record, verifies every signature against
// the trust framework root CA, locates the transfer addressed to it, and
// extends the chain: receipt of the readings, the CAP user's consent, the
// grid carbon intensity origin, the emissions calculation, and the onward
// transfer of the report to the bank. The CAP's seal covers the complete
// chain including the EDP's steps.

import (
	"context"

	"github.com/information-sharing-networks/provenance-demo/internal/provenance"
)

// CreateCAPRecord verifies an EDP artifact and seals the extended CAP record.
func (s *Service) CreateCAPRecord(ctx context.Context, signer provenance.Signer, certs provenance.CertificateProvider, req *CAPRecordRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rec, err := provenance.Decode(s.trustFramework, req.EDPRecord)
	if err != nil {
		return nil, err
	}

	if err := rec.Verify(certs); err != nil {
		return nil, err
	}

	// the transfer must be addressed to this CAP and signed by the expected EDP
	transferStep, err := rec.FindStep(map[string]any{
		"type":     string(provenance.StepTypeTransfer),
		"scheme":   s.scheme,
		"to":       req.CAPMemberID,
		"standard": s.schemeTerm(consumptionStandardPath),
		"licence":  s.schemeTerm(consumptionLicencePath),
		"service":  req.EDPServiceURL,
		"path":     "/readings",
		"parameters": map[string]any{
			"measure": "import",
			"from":    datestamp(req.FromDate),
			"to":      datestamp(req.ToDate),
		},
		provenance.SignedByCriterion: req.EDPMemberID,
	})
	if err != nil {
		return nil, err
	}

	receiptID, err := rec.AddStep(&provenance.ReceiptStep{
		Transfer: transferStep.ID,
	})
	if err != nil {
		return nil, err
	}

	permissionID, err := rec.AddStep(&provenance.PermissionStep{
		Scheme:    s.scheme,
		Timestamp: timestamp(req.CAPPermissionGranted),
		Account:   req.CAPAccount,
		Allows: map[string][]string{
			"licences":  {s.schemeTerm(emissionsLicencePath)},
			"processes": {s.schemeTerm(emissionsProcessPath)},
		},
		Expires: timestamp(req.CAPPermissionExpires),
	})
	if err != nil {
		return nil, err
	}

	intensityOriginID, err := rec.AddStep(&provenance.OriginStep{
		Scheme:        s.scheme,
		SourceType:    s.schemeTerm(gridSourceTypePath),
		Origin:        req.GridIntensityOrigin,
		OriginLicence: req.GridIntensityLicence,
		External:      true,
		SchemeData: map[string]any{
			"meteringPeriod": map[string]any{
				"from": datestamp(req.FromDate),
				"to":   datestamp(req.ToDate),
			},
			"postcode": req.Postcode,
		},
		Assurance: map[string]any{
			"missingData": s.schemeTerm(completeDataPath),
		},
	})
	if err != nil {
		return nil, err
	}

	processID, err := rec.AddStep(&provenance.ProcessStep{
		Scheme:      s.scheme,
		Inputs:      []string{receiptID, intensityOriginID},
		Process:     s.schemeTerm(emissionsProcessPath),
		Permissions: []string{permissionID},
		Assurance: map[string]any{
			"missingData": s.schemeTerm(substitutedDataPath),
		},
	})
	if err != nil {
		return nil, err
	}

	if _, err := rec.AddStep(&provenance.TransferStep{
		Scheme:   s.scheme,
		Of:       processID,
		To:       req.BankMemberID,
		Standard: s.schemeTerm(emissionsStandardPath),
		Licence:  s.schemeTerm(emissionsLicencePath),
		Service:  req.BankServiceURL,
		Path:     "/emissions",
		Parameters: map[string]any{
			"from": datestamp(req.FromDate),
			"to":   datestamp(req.ToDate),
		},
		Permissions: []string{permissionID},
	}); err != nil {
		return nil, err
	}

	return rec.Seal(ctx, signer)
}
