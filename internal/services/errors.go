package services

import "errors"

// ErrNoSymbols is returned when symbol resolution yields nothing to analyze
var ErrNoSymbols = errors.New("no symbols to analyze")
