package domain

import "errors"

var (
	ErrInvalidCharge           = errors.New("invalid_charge")
	ErrTransferRejected        = errors.New("transfer_rejected")
	ErrTransferFailed          = errors.New("transfer_failed")
	ErrMissingConnectedAccount = errors.New("missing_connected_account")
	ErrPayoutStateConflict     = errors.New("payout_state_conflict")
	ErrTransferClientMissing   = errors.New("transfer_client_missing")
)
