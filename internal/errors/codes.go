// Package errors provides structured domain errors for the marketplace.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidArgument represents a malformed or missing request field.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Offer errors
	CodeOfferInvalidPrice        Code = "OFFER_INVALID_PRICE"
	CodeOfferNotFound            Code = "OFFER_NOT_FOUND"
	CodeOfferAlreadySold         Code = "OFFER_ALREADY_SOLD"
	CodeOfferInsufficientPayment Code = "OFFER_INSUFFICIENT_PAYMENT"

	// Custody errors
	CodeAssetNotOwner            Code = "ASSET_NOT_OWNER"
	CodeAssetTransferNotApproved Code = "ASSET_TRANSFER_NOT_APPROVED"
	CodeAssetNotFound            Code = "ASSET_NOT_FOUND"

	// Collection errors
	CodeCollectionNotFound  Code = "COLLECTION_NOT_FOUND"
	CodeCollectionNameEmpty Code = "COLLECTION_NAME_EMPTY"

	// Account errors
	CodeAccountNotFound          Code = "ACCOUNT_NOT_FOUND"
	CodeAccountInsufficientFunds Code = "ACCOUNT_INSUFFICIENT_FUNDS"

	// Amount errors
	CodeAmountInvalid  Code = "AMOUNT_INVALID"
	CodeAmountOverflow Code = "AMOUNT_OVERFLOW"

	// Auth errors
	CodeAuthMissingToken Code = "AUTH_MISSING_TOKEN"
	CodeAuthInvalidToken Code = "AUTH_INVALID_TOKEN"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeInvalidArgument,
		CodeOfferInvalidPrice,
		CodeCollectionNameEmpty,
		CodeAmountInvalid,
		CodeAmountOverflow:
		return http.StatusBadRequest

	// Payment required - buyer cannot cover the asked total
	case CodeOfferInsufficientPayment,
		CodeAccountInsufficientFunds:
		return http.StatusPaymentRequired

	// Forbidden - caller lacks the rights the operation needs
	case CodeAssetNotOwner,
		CodeAssetTransferNotApproved:
		return http.StatusForbidden

	// Conflict - state doesn't allow the operation
	case CodeOfferAlreadySold:
		return http.StatusConflict

	// Not found - resource doesn't exist
	case CodeOfferNotFound,
		CodeAssetNotFound,
		CodeCollectionNotFound,
		CodeAccountNotFound:
		return http.StatusNotFound

	// Unauthorized - caller identity missing or unverifiable
	case CodeAuthMissingToken,
		CodeAuthInvalidToken:
		return http.StatusUnauthorized

	default:
		return http.StatusInternalServerError
	}
}
