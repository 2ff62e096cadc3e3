package domain

// Settings is the marketplace configuration fixed at first start.
type Settings struct {
	FeeRateBps uint32   `json:"fee_rate_bps"`
	Treasury   Identity `json:"treasury"`
	Owner      Identity `json:"owner"`
}

// Validate checks the fee-rate bound and that treasury and owner are set.
func (s Settings) Validate() error {
	if err := ValidateFeeRate(s.FeeRateBps); err != nil {
		return err
	}
	if s.Treasury == "" {
		return &ValidationError{Message: "treasury is required"}
	}
	if s.Owner == "" {
		return &ValidationError{Message: "owner is required"}
	}
	return nil
}
