package models

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// AssetClass identifies the market an underlying trades in.
type AssetClass int

const (
	AssetClassCrypto AssetClass = iota
	AssetClassForex
	AssetClassEquity
)

func (a AssetClass) String() string {
	switch a {
	case AssetClassCrypto:
		return "crypto"
	case AssetClassForex:
		return "forex"
	case AssetClassEquity:
		return "equity"
	}
	return "unknown"
}

// ParseAssetClass parses the string form of an asset class.
func ParseAssetClass(s string) (AssetClass, error) {
	switch s {
	case "crypto":
		return AssetClassCrypto, nil
	case "forex":
		return AssetClassForex, nil
	case "equity":
		return AssetClassEquity, nil
	}
	return 0, fmt.Errorf("unknown asset class: %q", s)
}

func (a AssetClass) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *AssetClass) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseAssetClass(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// OptionType distinguishes calls from puts.
type OptionType int

const (
	OptionTypeCall OptionType = iota
	OptionTypePut
)

func (o OptionType) String() string {
	if o == OptionTypePut {
		return "put"
	}
	return "call"
}

// ParseOptionType parses the string form of an option type.
func ParseOptionType(s string) (OptionType, error) {
	switch s {
	case "call":
		return OptionTypeCall, nil
	case "put":
		return OptionTypePut, nil
	}
	return 0, fmt.Errorf("unknown option type: %q", s)
}

func (o OptionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *OptionType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseOptionType(s)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// OptionStyle distinguishes exercise styles.
type OptionStyle int

const (
	OptionStyleEuropean OptionStyle = iota
	OptionStyleAmerican
)

func (s OptionStyle) String() string {
	if s == OptionStyleAmerican {
		return "american"
	}
	return "european"
}

// ParseOptionStyle parses the string form of an exercise style.
func ParseOptionStyle(s string) (OptionStyle, error) {
	switch s {
	case "european":
		return OptionStyleEuropean, nil
	case "american":
		return OptionStyleAmerican, nil
	}
	return 0, fmt.Errorf("unknown option style: %q", s)
}

func (s OptionStyle) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *OptionStyle) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseOptionStyle(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// OptionSpec describes a derivative contract. All monetary fields use the
// 18-decimal fixed-point scale. A spec is immutable once a position has been
// created from it.
type OptionSpec struct {
	AssetClass   AssetClass  `json:"assetClass"`
	Underlying   string      `json:"underlying"`
	OptionType   OptionType  `json:"optionType"`
	Style        OptionStyle `json:"style"`
	StrikePrice  *big.Int    `json:"strikePrice"`
	ExpiryTime   int64       `json:"expiryTime"` // unix seconds
	ContractSize *big.Int    `json:"contractSize"`
	PriceFeedID  string      `json:"priceFeedId"`
}

// TimeToExpiry returns the remaining lifetime in seconds, clamped at zero.
func (s OptionSpec) TimeToExpiry(now time.Time) int64 {
	tte := s.ExpiryTime - now.Unix()
	if tte < 0 {
		return 0
	}
	return tte
}

// Greeks holds the five option sensitivities, signed, at the 18-decimal
// scale. Theta is expressed per calendar day, vega per 1% volatility move
// and rho per 1% rate move.
type Greeks struct {
	Delta *big.Int `json:"delta"`
	Gamma *big.Int `json:"gamma"`
	Theta *big.Int `json:"theta"`
	Vega  *big.Int `json:"vega"`
	Rho   *big.Int `json:"rho"`
}

// ZeroGreeks returns a Greeks value with every sensitivity set to zero.
func ZeroGreeks() Greeks {
	return Greeks{
		Delta: new(big.Int),
		Gamma: new(big.Int),
		Theta: new(big.Int),
		Vega:  new(big.Int),
		Rho:   new(big.Int),
	}
}
