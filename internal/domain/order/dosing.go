package order

import (
	"strings"
	"time"

	"github.com/openmrs/openmrs-api/internal/platform/apperr"
)

var durationUnits = map[string]bool{
	DurationMinutes: true, DurationHours: true, DurationDays: true,
	DurationWeeks: true, DurationMonths: true, DurationYears: true,
}

// autoExpireDate is start plus the duration, less one second.
func autoExpireDate(start time.Time, duration int, units string) (time.Time, error) {
	var end time.Time
	switch units {
	case DurationMinutes:
		end = start.Add(time.Duration(duration) * time.Minute)
	case DurationHours:
		end = start.Add(time.Duration(duration) * time.Hour)
	case DurationDays:
		end = start.AddDate(0, 0, duration)
	case DurationWeeks:
		end = start.AddDate(0, 0, 7*duration)
	case DurationMonths:
		end = start.AddDate(0, duration, 0)
	case DurationYears:
		end = start.AddDate(duration, 0, 0)
	default:
		return time.Time{}, apperr.Validation("unknown duration units %q", units)
	}
	return aMomentBefore(end), nil
}

// validateDrugDetails checks the dosing fields for the dosing type and
// care setting and fills in the auto-expire date from the duration.
func validateDrugDetails(o *Order, careSettingType string) error {
	d := o.Drug
	if d.DosingType == "" {
		d.DosingType = DosingSimple
	}
	switch d.DosingType {
	case DosingSimple:
		switch {
		case !d.Dose.Valid:
			return apperr.Validation("dose is required for simple dosing")
		case strings.TrimSpace(d.DoseUnits) == "":
			return apperr.Validation("dose units are required for simple dosing")
		case strings.TrimSpace(d.Route) == "":
			return apperr.Validation("route is required for simple dosing")
		case d.FrequencyID == nil:
			return apperr.Validation("frequency is required for simple dosing")
		}
	case DosingFreeText:
		if strings.TrimSpace(d.DosingInstructions) == "" {
			return apperr.Validation("dosing instructions are required for free text dosing")
		}
	default:
		return apperr.Validation("unknown dosing type %q", d.DosingType)
	}

	if d.Dose.Valid && !d.Dose.Decimal.IsPositive() {
		return apperr.Validation("dose must be greater than zero")
	}
	if d.Quantity.Valid && !d.Quantity.Decimal.IsPositive() {
		return apperr.Validation("quantity must be greater than zero")
	}
	if d.NumRefills != nil && *d.NumRefills < 0 {
		return apperr.Validation("number of refills cannot be negative")
	}
	if careSettingType == CareSettingOutpatient && o.Action != ActionDiscontinue {
		switch {
		case !d.Quantity.Valid:
			return apperr.Validation("quantity is required for outpatient drug orders")
		case strings.TrimSpace(d.QuantityUnits) == "":
			return apperr.Validation("quantity units are required for outpatient drug orders")
		case d.NumRefills == nil:
			return apperr.Validation("number of refills is required for outpatient drug orders")
		}
	}

	if d.Duration == nil {
		if d.DurationUnits != "" {
			return apperr.Validation("duration units given without a duration")
		}
		return nil
	}
	if *d.Duration <= 0 {
		return apperr.Validation("duration must be greater than zero")
	}
	if !durationUnits[d.DurationUnits] {
		return apperr.Validation("unknown duration units %q", d.DurationUnits)
	}
	if o.AutoExpireDate == nil {
		end, err := autoExpireDate(o.EffectiveStartDate(), *d.Duration, d.DurationUnits)
		if err != nil {
			return err
		}
		o.AutoExpireDate = &end
	}
	return nil
}
