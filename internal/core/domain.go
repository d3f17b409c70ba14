package core

import (
	"errors"
	"math"
	"strconv"
)

// InvalidInputMessage is the alert text shown when an edit is rejected.
const InvalidInputMessage = "请输入有效的数字"

// NewItemPrefix is the label prefix for appended rows ("New Item N").
const NewItemPrefix = "新商品 "

type (
	// Row is one priceable line item of a sheet.
	Row struct {
		ID    int     `json:"id" yaml:"id"`
		Name  string  `json:"name" yaml:"name"`
		Model string  `json:"model" yaml:"model"`
		Price float64 `json:"price" yaml:"price"`
		Cost  float64 `json:"cost" yaml:"cost"`
	}

	// Columns tells which optional columns a sheet shows and lets users edit.
	Columns struct {
		Model bool `json:"model" yaml:"model"`
		Cost  bool `json:"cost" yaml:"cost"`
	}
)

var (
	ErrInvalidNumber = errors.New("price and cost must be finite numbers")
	ErrNegativeValue = errors.New("price and cost must not be negative")
	ErrRowNotFound   = errors.New("row not found")
)

// Validate checks the numeric fields of a candidate row.
// Finiteness is checked before sign, so NaN reports ErrInvalidNumber.
func (r Row) Validate() error {
	if !isFinite(r.Price) || !isFinite(r.Cost) {
		return ErrInvalidNumber
	}
	if r.Price < 0 || r.Cost < 0 {
		return ErrNegativeValue
	}
	return nil
}

// IsValidationError reports whether err is one of the edit rejection reasons.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidNumber) || errors.Is(err, ErrNegativeValue)
}

// DefaultRow synthesizes the row appended after count existing rows.
func DefaultRow(count int) Row {
	id := count + 1
	return Row{
		ID:   id,
		Name: NewItemPrefix + strconv.Itoa(id),
	}
}

// Merge returns stored with the editable fields taken from candidate.
func (r Row) Merge(candidate Row, cols Columns) Row {
	out := r
	out.Name = candidate.Name
	out.Price = candidate.Price
	if cols.Model {
		out.Model = candidate.Model
	}
	if cols.Cost {
		out.Cost = candidate.Cost
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
