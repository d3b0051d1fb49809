package model

import (
	"strings"
	"time"
)

// MarkPaid moves a pending order to Paid. It reports whether the order changed.
//
// A duplicate payment message for an order that is already Paid, Shipped,
// Delivered or Refunded is a no-op. A payment arriving after cancellation
// leaves the order Cancelled; the caller decides how to surface that.
func (o *Order) MarkPaid(now time.Time) bool {
	if o.Status != OrderStatusPending {
		return false
	}
	o.Status = OrderStatusPaid
	o.UpdatedAt = now
	return true
}

// CanShip checks the shipping preconditions without mutating the order.
func (o *Order) CanShip() error {
	switch {
	case o.Status == OrderStatusPaid:
	case o.Status == OrderStatusPending && o.PaymentMethod == PaymentMethodPayOnDelivery:
	default:
		return ErrOrderNotShippable
	}

	if o.Shipping == nil || strings.TrimSpace(o.Shipping.Address) == "" {
		return ErrMissingShipping
	}

	return nil
}

// Ship marks the order Shipped and records tracking details.
func (o *Order) Ship(trackingNumber string, now time.Time, estimatedDelivery time.Time) error {
	if err := o.CanShip(); err != nil {
		return err
	}

	o.Status = OrderStatusShipped
	o.Shipping.TrackingNumber = &trackingNumber
	o.Shipping.ShippedAt = &now
	o.Shipping.EstimatedDelivery = &estimatedDelivery
	o.UpdatedAt = now
	return nil
}

// Cancel moves the order to Cancelled. It reports whether the order changed;
// cancelling an already cancelled order succeeds without change.
func (o *Order) Cancel(now time.Time) (bool, error) {
	switch o.Status {
	case OrderStatusCancelled:
		return false, nil
	case OrderStatusShipped, OrderStatusDelivered:
		return false, ErrOrderNotCancellable
	}

	o.Status = OrderStatusCancelled
	o.UpdatedAt = now
	return true, nil
}

// SetShippingAddress records where the order should be delivered.
func (o *Order) SetShippingAddress(address string, now time.Time) error {
	switch o.Status {
	case OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return ErrShippingLocked
	}

	address = strings.TrimSpace(address)
	if address == "" {
		return NewDomainError(ErrCodeValidation, "shipping address is required")
	}

	if o.Shipping == nil {
		o.Shipping = &ShippingRecord{}
	}
	o.Shipping.Address = address
	o.UpdatedAt = now
	return nil
}

// OverrideStatus sets status without any guard. Administrative use only.
func (o *Order) OverrideStatus(status OrderStatus, now time.Time) {
	o.Status = status
	o.UpdatedAt = now
}
