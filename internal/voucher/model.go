package voucher

import (
	"errors"
	"fmt"
	"strings"
)

type DiscountType string

const (
	FixedAmount  DiscountType = "FIXED_AMOUNT"
	Percentage   DiscountType = "PERCENTAGE"
	FullFreeShip DiscountType = "FULL_FREE_SHIP"
)

var ErrInvalidVoucher = errors.New("invalid voucher")

// Voucher is a shipping discount code stored at vouchers/{code}.
type Voucher struct {
	Code                   string       `json:"code"`
	Description            string       `json:"description"`
	IsActive               bool         `json:"isActive"`
	StartDate              int64        `json:"startDate"`
	EndDate                int64        `json:"endDate"`
	DiscountType           DiscountType `json:"discountType"`
	DiscountValue          float64      `json:"discountValue"`
	MaxDiscountAmount      *float64     `json:"maxDiscountAmount"`
	AppliesOncePerCustomer bool         `json:"appliesOncePerCustomer"`
}

func (v *Voucher) Validate() error {
	v.Code = strings.TrimSpace(v.Code)
	if v.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidVoucher)
	}
	if v.DiscountType == "" {
		v.DiscountType = FixedAmount
	}
	switch v.DiscountType {
	case FixedAmount, Percentage, FullFreeShip:
	default:
		return fmt.Errorf("%w: unknown discount type %q", ErrInvalidVoucher, v.DiscountType)
	}
	if v.DiscountValue < 0 {
		return fmt.Errorf("%w: negative discount", ErrInvalidVoucher)
	}
	if v.DiscountType == Percentage && v.DiscountValue > 100 {
		return fmt.Errorf("%w: percentage above 100", ErrInvalidVoucher)
	}
	if v.EndDate != 0 && v.EndDate < v.StartDate {
		return fmt.Errorf("%w: ends before it starts", ErrInvalidVoucher)
	}
	return nil
}
