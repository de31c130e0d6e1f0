//go:build !real_waku

package relaynet

func newGoWakuBackend() backend { return nil }
