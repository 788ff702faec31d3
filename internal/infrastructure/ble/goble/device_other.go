//go:build !linux

package goble

import "context"

func Open(context.Context, Config, Logger) (*Radio, error) {
	return nil, ErrUnsupported
}
