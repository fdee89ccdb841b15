package mml

import "errors"

var ErrSyntax = errors.New("mml: syntax error")
