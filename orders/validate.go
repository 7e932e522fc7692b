package orders

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidParams = errors.New("invalid params")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate range-checks the exchange constraints.
func (ex *ExchangeParams) Validate() error {
	if err := validate.Struct(ex); err != nil {
		return fmt.Errorf("%w: exchange: %v", ErrInvalidParams, err)
	}
	return nil
}

// Validate range-checks every field.
func (bp *BotParams) Validate() error {
	if err := validate.Struct(bp); err != nil {
		return fmt.Errorf("%w: bot: %v", ErrInvalidParams, err)
	}
	if math.IsInf(bp.EMASpan0, 0) || math.IsInf(bp.EMASpan1, 0) {
		return fmt.Errorf("%w: bot: ema spans must be finite", ErrInvalidParams)
	}
	return nil
}

// Validate checks both sides.
func (p *BotParamsPair) Validate() error {
	if err := p.Long.Validate(); err != nil {
		return fmt.Errorf("long: %w", err)
	}
	if err := p.Short.Validate(); err != nil {
		return fmt.Errorf("short: %w", err)
	}
	return nil
}
