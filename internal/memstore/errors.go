package memstore

import "errors"

var (
	errTxDone       = errors.New("transaction already finished")
	errMissingOwner = errors.New("owner does not exist")
)
