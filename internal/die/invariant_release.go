//go:build !test

package die

const strictInvariants = false
