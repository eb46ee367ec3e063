package service

import "errors"

var errTest = errors.New("boom")
