package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Per-kind payload schemas. Payloads are duck-typed at the wire boundary;
// decoding into a closed variant here makes canonicalization well-defined
// before anything is hashed.

type portfolioPayload struct {
	Positions []portfolioPosition `json:"positions" validate:"required,min=1,dive"`
}

type portfolioPosition struct {
	Ticker   string  `json:"ticker" validate:"required"`
	Quantity float64 `json:"quantity" validate:"required"`
}

type pricesPayload struct {
	Quotes []priceQuote `json:"quotes" validate:"required,min=1,dive"`
}

type priceQuote struct {
	Ticker string  `json:"ticker" validate:"required"`
	Price  float64 `json:"price" validate:"required,gt=0"`
}

type factorsPayload struct {
	Factors map[string]float64 `json:"factors" validate:"required,min=1"`
}

type stressPayload struct {
	ShockPct float64 `json:"shock_pct" validate:"required,gt=-1,lte=10"`
}

type whatIfPayload struct {
	Overrides map[string]float64 `json:"overrides" validate:"required,min=1"`
}

type shockLadderPayload struct {
	Steps   int     `json:"steps" validate:"required,min=1,max=100"`
	StepPct float64 `json:"step_pct" validate:"required,gt=0"`
}

// ValidateDatasetPayload checks payload against the closed schema for kind.
// Errors wrap ErrValidation with field-level detail.
func ValidateDatasetPayload(kind DatasetKind, payload map[string]any) error {
	switch kind {
	case DatasetPortfolio:
		return decodeAndValidate(payload, &portfolioPayload{})
	case DatasetPrices:
		return decodeAndValidate(payload, &pricesPayload{})
	case DatasetFactors:
		return decodeAndValidate(payload, &factorsPayload{})
	default:
		return fmt.Errorf("%w: unknown dataset kind %q", ErrValidation, kind)
	}
}

// ValidateScenarioPayload checks payload against the closed schema for kind.
func ValidateScenarioPayload(kind ScenarioKind, payload map[string]any) error {
	switch kind {
	case ScenarioStress:
		return decodeAndValidate(payload, &stressPayload{})
	case ScenarioWhatIf:
		return decodeAndValidate(payload, &whatIfPayload{})
	case ScenarioShockLadder:
		return decodeAndValidate(payload, &shockLadderPayload{})
	default:
		return fmt.Errorf("%w: unknown scenario kind %q", ErrValidation, kind)
	}
}

// DatasetRowCount reports the row count recorded on ingestion: the length of
// the payload's primary collection.
func DatasetRowCount(kind DatasetKind, payload map[string]any) int {
	key := ""
	switch kind {
	case DatasetPortfolio:
		key = "positions"
	case DatasetPrices:
		key = "quotes"
	case DatasetFactors:
		if m, ok := payload["factors"].(map[string]any); ok {
			return len(m)
		}
		if m, ok := payload["factors"].(map[string]float64); ok {
			return len(m)
		}
		return 0
	}
	if rows, ok := payload[key].([]any); ok {
		return len(rows)
	}
	return 0
}

func decodeAndValidate(payload map[string]any, schema any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := json.Unmarshal(b, schema); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := validate.Struct(schema); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			var fields []string
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid fields: %v", ErrValidation, fields)
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
