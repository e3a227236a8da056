//go:build !linux

package main

import "errors"

func local(Config) error {
	return errors.New("local mode needs the Linux GPIO character device")
}
