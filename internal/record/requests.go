// Package record assembles complete provenance records for the two workflows
// the service supports: the energy data provider (EDP) seals the consent,
// origin and transfer of meter readings, and the carbon accounting provider
// (CAP) extends a received EDP record with receipt, processing and onward
// transfer steps.
package record

import (
	"encoding/json"
	"time"
)

// EDPRecordRequest describes an energy data provider sealing request.
type EDPRecordRequest struct {
	FromDate          time.Time `json:"fromDate"`
	ToDate            time.Time `json:"toDate"`
	PermissionGranted time.Time `json:"permissionGranted"`
	PermissionExpires time.Time `json:"permissionExpires"`
	ServiceURL        string    `json:"serviceUrl"`
	Account           string    `json:"account"`
	FAPIID            string    `json:"fapiId"`
	CAPMember         string    `json:"capMember"`
	OriginURL         string    `json:"originUrl"`
	OriginLicenceURL  string    `json:"originLicenceUrl"`
}

// Validate checks required fields and date ordering.
func (r *EDPRecordRequest) Validate() error {
	if err := requireFields(map[string]string{
		"serviceUrl":       r.ServiceURL,
		"account":          r.Account,
		"fapiId":           r.FAPIID,
		"capMember":        r.CAPMember,
		"originUrl":        r.OriginURL,
		"originLicenceUrl": r.OriginLicenceURL,
	}); err != nil {
		return err
	}
	if err := requireDateRange(r.FromDate, r.ToDate); err != nil {
		return err
	}
	return requirePermissionWindow(r.PermissionGranted, r.PermissionExpires)
}

// CAPRecordRequest describes a carbon accounting provider sealing request.
// EDPRecord is the encoded artifact produced by the EDP.
type CAPRecordRequest struct {
	EDPRecord            json.RawMessage `json:"edpRecord"`
	CAPMemberID          string          `json:"capMemberId"`
	BankMemberID         string          `json:"bankMemberId"`
	CAPAccount           string          `json:"capAccount"`
	CAPPermissionGranted time.Time       `json:"capPermissionGranted"`
	CAPPermissionExpires time.Time       `json:"capPermissionExpires"`
	GridIntensityOrigin  string          `json:"gridIntensityOrigin"`
	GridIntensityLicence string          `json:"gridIntensityLicence"`
	Postcode             string          `json:"postcode"`
	EDPServiceURL        string          `json:"edpServiceUrl"`
	EDPMemberID          string          `json:"edpMemberId"`
	BankServiceURL       string          `json:"bankServiceUrl"`
	FromDate             time.Time       `json:"fromDate"`
	ToDate               time.Time       `json:"toDate"`
}

// Validate checks required fields and date ordering.
func (r *CAPRecordRequest) Validate() error {
	if len(r.EDPRecord) == 0 {
		return newValidationError("edpRecord is required")
	}
	if err := requireFields(map[string]string{
		"capMemberId":          r.CAPMemberID,
		"bankMemberId":         r.BankMemberID,
		"capAccount":           r.CAPAccount,
		"gridIntensityOrigin":  r.GridIntensityOrigin,
		"gridIntensityLicence": r.GridIntensityLicence,
		"postcode":             r.Postcode,
		"edpServiceUrl":        r.EDPServiceURL,
		"edpMemberId":          r.EDPMemberID,
		"bankServiceUrl":       r.BankServiceURL,
	}); err != nil {
		return err
	}
	if err := requireDateRange(r.FromDate, r.ToDate); err != nil {
		return err
	}
	return requirePermissionWindow(r.CAPPermissionGranted, r.CAPPermissionExpires)
}
