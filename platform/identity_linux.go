// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

//go:build linux

package platform

import (
	"os"
	"strings"
)

const bootIDPath = "/proc/sys/kernel/random/boot_id"

func currentIdentity() (Identity, error) {
	raw, err := os.ReadFile(bootIDPath)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		BootID: strings.TrimSpace(string(raw)),
		EUID:   os.Geteuid(),
		EGID:   os.Getegid(),
	}, nil
}
