// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

//go:build !linux

package platform

func currentIdentity() (Identity, error) {
	return Identity{BootID: "unsupported"}, nil
}
