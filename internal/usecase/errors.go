package usecase

import "errors"

var errStreamClosed = errors.New("sensor hub stream closed")
